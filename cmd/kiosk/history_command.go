package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kiosk/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var member string
	var days int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent presence changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if days > 0 {
				counts, err := store.DailyCounts(cmd.Context(), days)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(counts))
				for _, c := range counts {
					rows = append(rows, []string{c.Day, strconv.FormatInt(c.Enters, 10), strconv.FormatInt(c.Exits, 10)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Day", "Enters", "Exits"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
				return nil
			}

			entries, err := store.Recent(cmd.Context(), limit, member)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No presence changes recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.OccurredAt.Local().Format("2006-01-02 15:04:05"),
					e.Action,
					e.Identifier,
					e.MemberID,
					e.Source,
				})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Time", "Action", "Identifier", "Member", "Source"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&member, "member", "", "Only show changes for this member id")
	cmd.Flags().IntVar(&days, "days", 0, "Show per-day enter/exit totals for this many days instead")
	return cmd
}
