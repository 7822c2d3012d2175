package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kiosk/internal/config"
	"kiosk/internal/directory"
	"kiosk/internal/greeting"
	"kiosk/internal/identifier"
)

func newMemberCommand(ctx *commandContext) *cobra.Command {
	memberCmd := &cobra.Command{
		Use:   "member",
		Short: "Manage the member directory",
	}
	memberCmd.AddCommand(newMemberAddCommand(ctx))
	memberCmd.AddCommand(newMemberLinkCommand(ctx, "link-card", "Link a card serial to a member", identifier.KindCardSerial))
	memberCmd.AddCommand(newMemberLinkCommand(ctx, "link-number", "Link a member number to a member", identifier.KindMemberNumber))
	memberCmd.AddCommand(newMemberListCommand(ctx))
	return memberCmd
}

func openDirectory(cmd *cobra.Command, ctx *commandContext) (*directory.SQLiteDirectory, *config.Config, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	dir, err := directory.OpenSQLite(cmd.Context(), cfg.Paths.DirectoryDB)
	if err != nil {
		return nil, nil, err
	}
	return dir, cfg, nil
}

func newMemberAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var avatar string

	cmd := &cobra.Command{
		Use:   "add <member-id>",
		Short: "Create a member or update its greeting name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, cfg, err := openDirectory(cmd, ctx)
			if err != nil {
				return err
			}
			defer dir.Close()

			memberID := strings.TrimSpace(args[0])
			existing, found, err := dir.Member(cmd.Context(), memberID)
			if err != nil {
				return err
			}
			if err := dir.UpsertMember(cmd.Context(), memberID, name, avatar); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintf(out, "Added member %s\n", memberID)
				return nil
			}
			fmt.Fprintf(out, "Updated member %s\n", memberID)
			if existing.GreetingName != strings.TrimSpace(name) {
				removed, err := greeting.NewCache(cfg.Paths.AudioDir, nil).Purge(memberID)
				if err != nil {
					return fmt.Errorf("purge cached greetings: %w", err)
				}
				if removed > 0 {
					fmt.Fprintf(out, "Removed %d cached greeting(s); they will be synthesized with the new name\n", removed)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Name spoken in the greeting (empty greets anonymously)")
	cmd.Flags().StringVar(&avatar, "avatar", "", "Avatar URL shown on the signage feed")
	return cmd
}

func newMemberLinkCommand(ctx *commandContext, use, short string, kind identifier.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <identifier> <member-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identifier.Normalize(args[0])
			if err != nil {
				return err
			}
			if id.Kind() != kind {
				return fmt.Errorf("%s is a %s, expected a %s", id, id.Kind(), kind)
			}

			dir, _, err := openDirectory(cmd, ctx)
			if err != nil {
				return err
			}
			defer dir.Close()

			memberID := strings.TrimSpace(args[1])
			if kind == identifier.KindCardSerial {
				err = dir.LinkCard(cmd.Context(), id, memberID)
			} else {
				err = dir.LinkNumber(cmd.Context(), id, memberID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s %s to %s\n", kind, id, memberID)
			return nil
		},
	}
}

func newMemberListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members with their linked identifiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _, err := openDirectory(cmd, ctx)
			if err != nil {
				return err
			}
			defer dir.Close()

			members, err := dir.ListMembers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(members) == 0 {
				fmt.Fprintln(out, "No members registered")
				return nil
			}
			rows := make([][]string, 0, len(members))
			for _, m := range members {
				rows = append(rows, []string{
					m.MemberID,
					m.GreetingName,
					strings.Join(m.Cards, ", "),
					strings.Join(m.Numbers, ", "),
				})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Member", "Name", "Cards", "Numbers"}, rows, nil))
			return nil
		},
	}
}
