package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	kgridZMax  float64
	kgridStep  float64
	kgridEvery int
)

var kgridCmd = &cobra.Command{
	Use:   "kgrid",
	Short: "Print the i-band K-correction grid",
	Long: `Compute K-corrections of the configured spectral template through the
i-band bandpass on a regular redshift grid from 0 to --zmax, together with
the distance modulus at each grid point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("step") {
			cfg.Template.GridStep = kgridStep
		}
		calc, err := newCalculator(cfg, consoleLogger())
		if err != nil {
			return err
		}
		grid, err := calc.BuildGrid(context.Background(), kgridZMax)
		if err != nil {
			return err
		}

		every := max(kgridEvery, 1)
		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"z", "K(z)", "DM(z)"})
		for i, z := range grid.Z {
			if i%every != 0 && i != len(grid.Z)-1 {
				continue
			}
			tbl.AppendRow(table.Row{
				strconv.FormatFloat(z, 'f', 3, 64),
				strconv.FormatFloat(grid.K[i], 'f', 4, 64),
				strconv.FormatFloat(calc.Cosmology.DistanceModulus(z), 'f', 4, 64),
			})
		}
		tbl.AppendFooter(table.Row{"points", len(grid.Z), ""})
		fmt.Println(tbl.Render())
		return nil
	},
}

func init() {
	kgridCmd.Flags().Float64Var(&kgridZMax, "zmax", 3.0, "largest redshift covered by the grid")
	kgridCmd.Flags().Float64Var(&kgridStep, "step", 0, "grid spacing (default from config)")
	kgridCmd.Flags().IntVar(&kgridEvery, "every", 10, "print every n-th grid point")
	rootCmd.AddCommand(kgridCmd)
}
