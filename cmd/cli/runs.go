package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scqc/domain/core"
	"scqc/domain/run"
	"scqc/internal/errors"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history stored in PostgreSQL",
	}
	cmd.AddCommand(newRunsListCmd(root), newRunsShowCmd(root))
	return cmd
}

func newRunsListCmd(root *rootOptions) *cobra.Command {
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.open(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer s.close()
			if s.repo == nil {
				return errors.ConfigInvalid("runs need DATABASE_URL or --database-url")
			}

			runs, err := s.repo.ListRuns(cmd.Context(), run.Kind(kind), limit)
			if err != nil {
				return err
			}
			for _, m := range runs {
				fmt.Printf("%s  %-7s  %s  cells=%d  fingerprint=%s\n",
					m.RunID, m.Kind, m.CreatedAt.Format("2006-01-02 15:04:05"), m.NumCells, m.Fingerprint.Short())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only list qc or cluster runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func newRunsShowCmd(root *rootOptions) *cobra.Command {
	var same bool

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a run manifest as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseRunID(args[0])
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			s, err := root.open(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer s.close()
			if s.repo == nil {
				return errors.ConfigInvalid("runs need DATABASE_URL or --database-url")
			}

			m, err := s.repo.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(m); err != nil {
				return errors.Wrap(err, "failed to encode manifest")
			}

			if !same {
				return nil
			}
			matches, err := s.repo.FindByFingerprint(cmd.Context(), m.Fingerprint)
			if err != nil {
				return err
			}
			fmt.Printf("%d run(s) share fingerprint %s:\n", len(matches), m.Fingerprint.Short())
			for _, other := range matches {
				fmt.Printf("  %s  %s\n", other.RunID, other.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&same, "same", false, "also list runs with the same fingerprint")
	return cmd
}
