package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/source"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the tables and chunking of the AGN parameter database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()

		r := source.NewSQLiteReader(cfg.Source.Path, cfg.Source.Table, cfg.Source.ChunkSize)
		if err := r.Open(ctx); err != nil {
			return err
		}
		defer r.Close()

		tables, err := r.Tables(ctx)
		if err != nil {
			return fmt.Errorf("listing tables: %w", err)
		}
		rows, err := r.Count(ctx)
		if err != nil {
			return fmt.Errorf("counting rows: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.Source.Path)
		if info, err := os.Stat(cfg.Source.Path); err == nil {
			fmt.Printf("Size:     %s\n", humanize.IBytes(uint64(info.Size())))
		}
		fmt.Println()

		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"Table", "Rows", "Chunk size", "Chunks"})
		for _, name := range tables {
			if name != cfg.Source.Table {
				tbl.AppendRow(table.Row{name, "", "", ""})
				continue
			}
			tbl.AppendRow(table.Row{
				name,
				humanize.Comma(rows),
				humanize.Comma(int64(cfg.Source.ChunkSize)),
				source.ChunkCount(rows, cfg.Source.ChunkSize),
			})
		}
		fmt.Println(tbl.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
