package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"camtrap/internal/logging"
	"camtrap/internal/web"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show detection and camera status of the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Status()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Detection", colorize)
			lines = append(lines, detectionLines(resp.Detection, colorize)...)
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Camera", colorize)...)
			lines = append(lines, deviceLines(resp.Device, colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			if rows := deviceCounterRows(resp.Device); len(rows) > 0 {
				fmt.Fprintln(out, renderKeyValueTable("Counter", "Value", rows))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status document")
	return cmd
}

func newRecenterCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recenter X Y",
		Short: "Move the detection region to frame coordinates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid x coordinate %q", args[0])
			}
			y, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid y coordinate %q", args[1])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			r, err := client.Recenter(x, y)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Detection region centered at (%d, %d), side %d\n", r.CenterX, r.CenterY, r.Side)
			return nil
		},
	}
}

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Queue a manual photo capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Capture(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Capture queued")
			return nil
		},
	}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Logs(0, limit, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, evt := range resp.Events {
				fmt.Fprintln(out, formatLogEvent(evt))
			}
			if !follow {
				return nil
			}
			return client.FollowLogs(cmd.Context(), resp.Next, func(batch web.LogsResponse) {
				for _, evt := range batch.Events {
					fmt.Fprintln(out, formatLogEvent(evt))
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of recent events to print")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format(time.DateTime))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%-5s", strings.ToUpper(evt.Level)))
	if evt.Component != "" {
		b.WriteString(" [")
		b.WriteString(evt.Component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	if evt.CommandID != "" {
		b.WriteString(" command=")
		b.WriteString(evt.CommandID)
	}
	if len(evt.Fields) > 0 {
		keys := lo.Keys(evt.Fields)
		slices.Sort(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(evt.Fields[k])
		}
	}
	return b.String()
}
