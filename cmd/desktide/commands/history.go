package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/desktide/desktide/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit       int
		runID       string
		journalPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs from the journal",
		Example: `  # Recent runs
  desktide history

  # Full per-resource detail for one run
  desktide history --run 7f3c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := journalPath
			if path == "" {
				var err error
				path, err = defaultJournalPath()
				if err != nil {
					return err
				}
			}

			journal, err := stores.NewJournal(stores.Config{Path: path})
			if err != nil {
				return err
			}
			if err := journal.Init(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = journal.Close() }()

			if runID != "" {
				return showRun(cmd, journal, runID)
			}

			runs, err := journal.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tAPPLIED\tSKIPPED\tFAILED\tFATAL")
			for _, r := range runs {
				fatal := "-"
				if r.FatalResource != nil {
					fatal = *r.FatalResource
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Applied, r.Skipped, r.Failed, fatal)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show per-resource outcomes for one run")
	cmd.Flags().StringVar(&journalPath, "journal", "", "run journal database path")

	return cmd
}

func showRun(cmd *cobra.Command, journal *stores.Journal, id string) error {
	run, outcomes, err := journal.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run      *stores.RunRecord       `json:"run"`
			Outcomes []*stores.OutcomeRecord `json:"outcomes"`
		}{run, outcomes})
	}

	fmt.Printf("run %s (plan %s) started %s\n", run.ID, run.PlanID, run.StartedAt.Format("2006-01-02 15:04:05"))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tKIND\tSTATUS\tATTEMPTS\tREASON")
	for _, o := range outcomes {
		reason := o.Reason
		if o.Error != nil {
			reason = *o.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.ResourceID, o.Kind, o.Status, o.Attempts, reason)
	}
	return w.Flush()
}
