package params

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/source"
)

func batch(blobs ...string) *frame.Frame {
	ids := make([]int64, len(blobs))
	mags := make([]float64, len(blobs))
	for i := range blobs {
		ids[i] = int64(10 * (i + 1))
		mags[i] = 20
	}
	return frame.MustNew(
		frame.NewInt64(source.ColGalaxyID, ids),
		frame.NewFloat64(source.ColMagNorm, mags),
		frame.NewString(source.ColVarParamStr, blobs),
	)
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"json", `{"m": "applyAgn", "p": {"seed": 7, "agn_tau_r": 120.5}}`},
		{"compact json", `{"m":"applyAgn","p":{"seed":7,"agn_tau_r":120.5}}`},
		{"python literal", `{'m': 'applyAgn', 'p': {'seed': 7, 'agn_tau_r': 120.5}}`},
		{"y band and start epoch", `{"m": "applyAgn", "p": {"seed": 7, "agn_tau_r": 120.5, "agn_tau_y": 130.0, "agn_sf_y": 0.4, "t0_mjd": 48000.0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, seen, err := Parse(tt.blob)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if p.Seed != 7 {
				t.Errorf("Seed = %v, want 7", p.Seed)
			}
			if p.Tau[2] != 120.5 {
				t.Errorf("Tau[r] = %v, want 120.5", p.Tau[2])
			}
			if !math.IsNaN(p.Tau[0]) {
				t.Errorf("Tau[u] = %v, want NaN", p.Tau[0])
			}
			if want := uint32(1 | 1<<3); seen&want != want {
				t.Errorf("seen mask = %b", seen)
			}
		})
	}
}

func TestParse_YBandAndStartEpoch(t *testing.T) {
	p, seen, err := Parse(`{"p": {"seed": 7, "agn_tau_u": 100.0, "agn_tau_y": 120.0, "agn_sf_y": 0.4, "t0_mjd": 48000.5}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Tau[5] != 120 || p.SF[5] != 0.4 {
		t.Errorf("y band = tau %v sf %v, want 120 and 0.4", p.Tau[5], p.SF[5])
	}
	if p.T0MJD != 48000.5 {
		t.Errorf("T0MJD = %v, want 48000.5", p.T0MJD)
	}
	if want := uint32(1 | 1<<1 | 1<<6 | 1<<12 | 1<<13); seen != want {
		t.Errorf("seen mask = %b, want %b", seen, want)
	}
}

func TestParse_LegacyAliases(t *testing.T) {
	p, _, err := Parse(`{'p': {'agn_tau': 300.0, 'agn_sfg': 0.25}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for i, tau := range p.Tau {
		if tau != 300 {
			t.Errorf("Tau[%d] = %v, want 300", i, tau)
		}
	}
	if p.SF[1] != 0.25 {
		t.Errorf("SF[g] = %v, want 0.25", p.SF[1])
	}

	p, _, err = Parse(`{'p': {'agn_tau': 300.0, 'agn_sfz': 0.2, 'agn_sfy': 0.35}}`)
	if err != nil {
		t.Fatalf("Parse with agn_sfy: %v", err)
	}
	if p.SF[4] != 0.2 || p.SF[5] != 0.35 {
		t.Errorf("SF[z], SF[y] = %v, %v, want 0.2, 0.35", p.SF[4], p.SF[5])
	}
	if p.Tau[5] != 300 {
		t.Errorf("Tau[y] = %v, want 300", p.Tau[5])
	}
}

func TestParse_NonFinite(t *testing.T) {
	p, _, err := Parse(`{'p': {'agn_sf_u': nan, 'agn_sf_g': .inf}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !math.IsNaN(p.SF[0]) || !math.IsInf(p.SF[1], 1) {
		t.Errorf("SF = %v", p.SF)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"empty", ``},
		{"not a mapping", `[1, 2]`},
		{"missing p", `{'m': 'applyAgn'}`},
		{"p not mapping", `{'p': 3}`},
		{"unknown key", `{'p': {'agn_color': 1.0}}`},
		{"non numeric", `{'p': {'seed': 'abc'}}`},
		{"boolean", `{'p': {'seed': True}}`},
		{"truncated", `{'p': {'seed': 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Parse(tt.blob); err == nil {
				t.Errorf("expected error for %q", tt.blob)
			}
		})
	}
}

func TestUnravel_PreservesRowsAndUnionsKeys(t *testing.T) {
	in := batch(
		`{'m': 'applyAgn', 'p': {'seed': 1, 'agn_tau_u': 10.0}}`,
		`{'m': 'applyAgn', 'p': {'seed': 2, 'agn_sf_z': 0.3}}`,
		`{'m': 'applyAgn', 'p': {'seed': 3}}`,
	)
	out, err := Unravel(in)
	if err != nil {
		t.Fatalf("Unravel: %v", err)
	}
	if out.Len() != in.Len() {
		t.Errorf("row count = %d, want %d", out.Len(), in.Len())
	}
	wantNames := []string{source.ColGalaxyID, source.ColMagNorm, "seed", "agn_tau_u", "agn_sf_z"}
	if diff := cmp.Diff(wantNames, out.Names()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	tau, _ := out.Float64s("agn_tau_u")
	if tau[0] != 10 || !math.IsNaN(tau[1]) || !math.IsNaN(tau[2]) {
		t.Errorf("agn_tau_u = %v", tau)
	}
	if !in.Has(source.ColVarParamStr) {
		t.Error("Unravel must not mutate its input frame")
	}
}

func TestUnravel_Empty(t *testing.T) {
	out, err := Unravel(batch())
	if err != nil {
		t.Fatalf("Unravel: %v", err)
	}
	if out.Len() != 0 || out.Has(source.ColVarParamStr) {
		t.Errorf("unexpected output columns %v", out.Names())
	}
}

func TestUnravel_MalformedRow(t *testing.T) {
	in := batch(`{'p': {'seed': 1}}`, `{'p': {'bogus': 1}}`)
	_, err := Unravel(in)

	var mpe *MalformedParameterError
	if !errors.As(err, &mpe) {
		t.Fatalf("expected MalformedParameterError, got %v", err)
	}
	if mpe.Row != 1 || mpe.GalaxyID != 20 {
		t.Errorf("error location = row %d id %d, want row 1 id 20", mpe.Row, mpe.GalaxyID)
	}
}

func TestUnravel_MissingColumn(t *testing.T) {
	f := frame.MustNew(frame.NewInt64(source.ColGalaxyID, []int64{1}))
	if _, err := Unravel(f); err == nil {
		t.Error("expected error when varParamStr is absent")
	}
}

func TestCanonicalKeys(t *testing.T) {
	keys := CanonicalKeys()
	if len(keys) != 2+2*len(Bands) || keys[0] != "seed" || keys[1] != "agn_tau_u" || keys[12] != "agn_sf_y" || keys[13] != "t0_mjd" {
		t.Errorf("CanonicalKeys = %v", keys)
	}
	if numBands != len(Bands) {
		t.Errorf("numBands = %d, len(Bands) = %d", numBands, len(Bands))
	}
}
