package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"kiosk/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, reader, and dependency status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			socket, err := ctx.socketPath()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), socket, cfg)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
}

func renderStatus(out io.Writer, snapshot daemonctl.Snapshot) {
	status := snapshot.Status
	rows := [][]string{}
	if snapshot.Online {
		rows = append(rows, []string{"Daemon", "running (pid " + strconv.Itoa(status.PID) + ")"})
	} else {
		rows = append(rows, []string{"Daemon", "not running (start with `kiosk run`)"})
	}
	rows = append(rows, []string{"State file", status.StateFile})
	if status.LogPath != "" {
		rows = append(rows, []string{"Log", status.LogPath})
	}

	reader := "disabled"
	if status.Reader.Enabled {
		reader = "enabled"
		if snapshot.Online {
			if status.Reader.Healthy {
				reader = "healthy"
			} else {
				reader = "faulted"
				if status.Reader.LastFault != "" {
					reader += ": " + status.Reader.LastFault
				}
			}
		}
	}
	rows = append(rows, []string{"Card reader", reader})
	rows = append(rows, []string{"Hotplug", yesNo(status.Reader.Hotplug)})

	if snapshot.Online {
		p := status.Pipeline
		rows = append(rows,
			[]string{"Pipeline", yesNo(p.Running)},
			[]string{"Processed", strconv.FormatInt(p.Processed, 10)},
			[]string{"Dropped", strconv.FormatInt(p.Dropped, 10)},
			[]string{"Queue depth", strconv.Itoa(p.QueueDepth)},
			[]string{"Live viewers", strconv.Itoa(status.Subscribers)},
		)
		if p.LastError != "" {
			rows = append(rows, []string{"Last error", p.LastError})
		}
		if item := p.LastItem; item != nil {
			last := item.Identifier + " via " + item.Source
			if item.Action != "" {
				last += " (" + item.Action + ")"
			}
			if item.Dropped != "" {
				last += " dropped: " + item.Dropped
			}
			rows = append(rows, []string{"Last item", last})
		}
	}
	fmt.Fprintln(out, renderTable(out, []string{"Item", "Value"}, rows, nil))

	if len(status.Dependencies) > 0 {
		depRows := make([][]string, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			state := "ok"
			if !dep.Available {
				state = "missing"
				if dep.Optional {
					state = "missing (optional)"
				}
			}
			detail := dep.Version
			if detail == "" {
				detail = dep.Detail
			}
			depRows = append(depRows, []string{dep.Name, dep.Command, state, detail})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Dependency", "Command", "State", "Detail"}, depRows, nil))
	}

	if len(snapshot.Checks) > 0 {
		checkRows := make([][]string, 0, len(snapshot.Checks))
		for _, check := range snapshot.Checks {
			state := "ok"
			if !check.Passed {
				state = "fail"
			}
			checkRows = append(checkRows, []string{check.Name, state, check.Detail})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Check", "Result", "Detail"}, checkRows, nil))
	}
}
