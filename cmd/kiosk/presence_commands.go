package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"kiosk/internal/api"
	"kiosk/internal/config"
	"kiosk/internal/directory"
	"kiosk/internal/ipc"
	"kiosk/internal/presence"
)

func newPresentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "present",
		Short: "List members currently inside and the enter counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var view api.PresenceView
			client, dialErr := ctx.dialClient()
			if dialErr == nil {
				defer client.Close()
				resp, err := client.Presence()
				if err != nil {
					return err
				}
				view = *resp
			} else {
				view, err = offlinePresence(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("daemon unreachable and state unreadable: %w", err)
				}
			}
			renderPresence(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

// offlinePresence reads the state file directly. It fails while a daemon
// holds the state lock.
func offlinePresence(ctx context.Context, cfg *config.Config) (api.PresenceView, error) {
	store, err := presence.Open(cfg.Paths.StateFile)
	if err != nil {
		return api.PresenceView{}, err
	}
	defer store.Close()

	dir, err := directory.OpenSQLite(ctx, cfg.Paths.DirectoryDB)
	if err != nil {
		return api.PresenceView{}, err
	}
	defer dir.Close()

	return api.FromPresence(ctx, store.Snapshot(), time.Now().Format(presence.DayLayout), dir), nil
}

func renderPresence(out io.Writer, view api.PresenceView) {
	if len(view.Present) == 0 {
		fmt.Fprintln(out, "Nobody is present")
	} else {
		rows := make([][]string, 0, len(view.Present))
		for _, member := range view.Present {
			name := member.DisplayName
			if name == "" {
				name = "-"
			}
			rows = append(rows, []string{member.Identifier, member.MemberID, name})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Identifier", "Member", "Name"}, rows, nil))
	}
	fmt.Fprintf(out, "Present: %d  Enters today (%s): %d  Enters total: %d\n",
		len(view.Present), view.Day, view.TodayEnters, view.TotalEnters)
}

func newEnterCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enter <identifier>",
		Short: "Submit a member number or card serial as if it was entered at the kiosk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(args[0])
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing submit response")
				}
				if !resp.Accepted {
					return fmt.Errorf("rejected: %s", resp.Message)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s\n", resp.Kind, resp.Identifier)
				return nil
			})
		},
	}
}
