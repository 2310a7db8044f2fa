package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/agnvar/agnvar/internal/lock"
	"github.com/agnvar/agnvar/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded state of the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		holder, held, err := lock.IsHeld(lock.PathFor(cfg.Output.Directory))
		if err != nil {
			return fmt.Errorf("checking lock: %w", err)
		}
		if held {
			fmt.Printf("A run is in progress (PID %d", holder.PID)
			if !holder.Started.IsZero() {
				fmt.Printf(", started %s", humanize.Time(holder.Started))
			}
			fmt.Print(").\n\n")
		}

		st, err := state.Load(cfg.Pipeline.StatePath)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
		if st == nil {
			fmt.Println("No run recorded. Start one with `agnvar run`.")
			return nil
		}

		fmt.Printf("Source:     %s (chunks of %s rows)\n", st.SourcePath, humanize.Comma(int64(st.ChunkSize)))
		fmt.Printf("Started:    %s\n", st.StartedAt.Format(time.RFC3339))
		fmt.Printf("Updated:    %s (%s)\n", st.LastUpdated.Format(time.RFC3339), humanize.Time(st.LastUpdated))
		if !st.Compatible(cfg.Source.Path, cfg.Source.ChunkSize) {
			fmt.Println("Note:       the config now names a different source or chunk size; --resume will start over.")
		}
		fmt.Println()

		for _, idx := range st.Indices() {
			cs := st.Get(idx)
			mark := "  "
			switch cs.Status {
			case state.StatusCompleted:
				mark = "OK"
			case state.StatusFailed:
				mark = "!!"
			case state.StatusRunning:
				mark = ">>"
			}
			line := fmt.Sprintf("  [%s] chunk %d", mark, idx)
			if cs.Status == state.StatusCompleted {
				line += fmt.Sprintf(": %s of %s rows joined -> %s",
					humanize.Comma(int64(cs.Joined)), humanize.Comma(int64(cs.Rows)), cs.Output)
			}
			if cs.Error != "" {
				line += ": " + cs.Error
			}
			fmt.Println(line)
		}

		counts := st.Counts()
		fmt.Printf("\n%d completed, %d failed, %d running\n",
			counts[state.StatusCompleted], counts[state.StatusFailed], counts[state.StatusRunning])
		if counts[state.StatusFailed] > 0 && !held {
			fmt.Println("Use `agnvar run --resume` to retry the failed chunks.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
