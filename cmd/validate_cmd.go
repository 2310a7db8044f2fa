package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/validation"
)

var (
	validateTolerance float64
	validateJSON      bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate persisted chunk files",
	Long: `Re-read every joined_<n>.csv in the output directory and check row counts,
required columns, galaxy_id uniqueness, the rest-frame i-band ratio and that
derived magnitudes are finite.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		v := &validation.Validator{
			Dir:       cfg.Output.Directory,
			ChunkSize: cfg.Source.ChunkSize,
			Tolerance: validateTolerance,
			Callback: func(file, checkType string, passed bool) {
				if validateJSON {
					return
				}
				status := "PASS"
				if !passed {
					status = "FAIL"
				}
				fmt.Printf("  [%s] %s: %s\n", status, file, checkType)
			},
		}

		if !validateJSON {
			fmt.Printf("Validating %s...\n", cfg.Output.Directory)
		}
		result, err := v.Validate(context.Background())
		if err != nil {
			return fmt.Errorf("validation: %w", err)
		}

		if validateJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			fmt.Printf("\nOverall: %s (%d chunks)\n", result.Status, len(result.Chunks))
		}
		if result.Status != "PASS" {
			return fmt.Errorf("validation %s", result.Status)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().Float64Var(&validateTolerance, "tolerance", 0, "relative tolerance of the rest-frame ratio check (default 1e-6)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(validateCmd)
}
