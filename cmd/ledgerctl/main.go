// Command ledgerctl is the operator tool for position logs: inspect them,
// roll them back to a date, or reset them to the opening cash record.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openquant/trading-agent/internal/ledger"
	"github.com/openquant/trading-agent/internal/prices"
	"github.com/openquant/trading-agent/internal/valuation"
)

var (
	dataDir    string
	identity   string
	mergedPath string
)

func book() *ledger.Ledger {
	store := prices.NewStore(mergedPath)
	resolver := prices.NewResolver(prices.SourceLocal, store, nil)
	return ledger.New(dataDir, identity, resolver)
}

func main() {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect and repair agent position logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "data/agent_data", "agent data directory")
	root.PersistentFlags().StringVar(&identity, "identity", "", "agent identity (required)")
	root.PersistentFlags().StringVar(&mergedPath, "merged", "data/merged.jsonl", "historical price file")
	root.MarkPersistentFlagRequired("identity")

	root.AddCommand(showCmd(), resetCmd(), backupsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func showCmd() *cobra.Command {
	var valueDate string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Summarize the position log, optionally valued at a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			l := book()
			sum, err := l.Summarize()
			if err != nil {
				return err
			}
			if !sum.Exists {
				fmt.Printf("no position log for %q under %s\n", identity, dataDir)
				return nil
			}
			fmt.Printf("records:    %d\n", sum.Records)
			fmt.Printf("first date: %s\n", sum.FirstDate)
			fmt.Printf("last date:  %s\n", sum.LastDate)
			if valueDate == "" {
				fmt.Printf("positions:  %v\n", sum.LastPositions)
				return nil
			}
			snap, _, err := l.LatestAsOf(valueDate)
			if err != nil {
				return err
			}
			store := prices.NewStore(mergedPath)
			resolver := prices.NewResolver(prices.SourceLocal, store, nil)
			total, breakdown := valuation.Value(context.Background(), resolver, valueDate, snap)
			fmt.Println(valuation.FormatSummary(valueDate, total, breakdown, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&valueDate, "date", "", "value holdings at this date using local prices")
	return cmd
}

func resetCmd() *cobra.Command {
	var (
		toDate   string
		toInit   bool
		noBackup bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Roll the position log back to a date, or to the opening record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if toInit == (toDate != "") {
				return fmt.Errorf("exactly one of --to or --init is required")
			}
			l := book()
			if toInit {
				if err := l.ResetToInit(!noBackup); err != nil {
					return err
				}
				fmt.Println("position log reset to opening record")
				return nil
			}
			kept, removed, err := l.ResetToDate(toDate, !noBackup)
			if err != nil {
				return err
			}
			fmt.Printf("kept %d records through %s, removed %d\n", kept, toDate, removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&toDate, "to", "", "keep records dated on or before this date")
	cmd.Flags().BoolVar(&toInit, "init", false, "keep only the opening record")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the safety backup before rewriting")
	return cmd
}

func backupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List position log backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := book().ListBackups()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no backups")
				return nil
			}
			for _, b := range infos {
				fmt.Printf("%s  %8d bytes  %s\n",
					b.Modified.Format("2006-01-02 15:04:05"), b.Size, b.Path)
			}
			return nil
		},
	}
}
