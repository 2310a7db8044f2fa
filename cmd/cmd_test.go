package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/config"
)

func TestSelectFigures(t *testing.T) {
	tests := []struct {
		kind, preset string
		want         []string
		wantErr      bool
	}{
		{kind: "hist", want: []string{"tau.html"}},
		{kind: "hist", preset: "sf", want: []string{"sf_inf.html"}},
		{kind: "corner", want: []string{"sf_tau.html"}},
		{kind: "corner", preset: "tau-wavelength", want: []string{"tau_wavelength.html"}},
		{kind: "hist2d", want: []string{"mi_z_count.html"}},
		{kind: "hist", preset: "mass", wantErr: true},
		{kind: "scatter", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.preset, func(t *testing.T) {
			figs, err := selectFigures(tt.kind, tt.preset)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, f := range figs {
				got = append(got, f.file)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("files = %v, want %v", got, tt.want)
			}
		})
	}

	all, err := selectFigures("all", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 7 {
		t.Errorf("all = %d figures, want 7", len(all))
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"abc":      "***",
		"postgres": "po****es",
	}
	for in, want := range tests {
		if got := maskSecret(in); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteConfigMasksPassword(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog.Type = config.CatalogPostgres
	cfg.Catalog.Password = "s3cretpass"

	var buf bytes.Buffer
	writeConfig(&buf, cfg)
	out := buf.String()
	if strings.Contains(out, "s3cretpass") {
		t.Error("password printed in clear")
	}
	if !strings.Contains(out, "s3******ss") {
		t.Errorf("masked password missing from:\n%s", out)
	}
}

func TestApplyRunFlagsResume(t *testing.T) {
	saved := runResume
	t.Cleanup(func() { runResume = saved })

	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "run"}
		c.Flags().BoolVar(&runResume, "resume", false, "")
		return c
	}

	cfg := &config.Config{Pipeline: config.PipelineConfig{Resume: true}}
	applyRunFlags(newCmd(), cfg)
	if !cfg.Pipeline.Resume {
		t.Error("pipeline.resume from the config should hold without --resume")
	}

	c := newCmd()
	if err := c.Flags().Set("resume", "false"); err != nil {
		t.Fatal(err)
	}
	applyRunFlags(c, cfg)
	if cfg.Pipeline.Resume {
		t.Error("--resume=false should override pipeline.resume")
	}

	cfg = &config.Config{}
	c = newCmd()
	if err := c.Flags().Set("resume", "true"); err != nil {
		t.Fatal(err)
	}
	applyRunFlags(c, cfg)
	if !cfg.Pipeline.Resume {
		t.Error("--resume should enable resuming")
	}
}
