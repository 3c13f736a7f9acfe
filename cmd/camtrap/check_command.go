package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"camtrap/internal/deps"
	"camtrap/internal/preflight"
	"camtrap/internal/services/gphoto"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var skipCamera bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the local system",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var detector preflight.CameraDetector
			if !skipCamera {
				client, err := gphoto.New(cfg.Camera.GPhoto2Binary, cfg.Camera.Port)
				if err == nil {
					detector = client
				}
			}
			results := preflight.RunAll(cmd.Context(), cfg, detector)
			binaries := deps.CheckBinaries([]deps.Requirement{
				{Name: "gphoto2", Command: cfg.Camera.GPhoto2Binary, Description: "Camera control"},
			})

			if asJSON {
				if err := writeJSON(cmd, map[string]any{"checks": results, "dependencies": binaries}); err != nil {
					return err
				}
			} else {
				rows := lo.Map(results, func(r preflight.Result, _ int) []string {
					return []string{r.Name, passLabel(r.Passed), r.Detail}
				})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&skipCamera, "skip-camera", false, "Skip camera auto-detection")
	return cmd
}

func passLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "FAIL"
}

func newCameraCommand(ctx *commandContext) *cobra.Command {
	cameraCmd := &cobra.Command{
		Use:   "camera",
		Short: "Camera utilities",
	}
	cameraCmd.AddCommand(&cobra.Command{
		Use:   "detect",
		Short: "List cameras gphoto2 can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := gphoto.New(cfg.Camera.GPhoto2Binary, cfg.Camera.Port)
			if err != nil {
				return err
			}
			cameras, err := client.Detect(cmd.Context())
			if err != nil {
				return fmt.Errorf("detect cameras: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(cameras) == 0 {
				fmt.Fprintln(out, "No cameras detected")
				return nil
			}
			rows := lo.Map(cameras, func(c gphoto.Camera, _ int) []string {
				return []string{c.Model, c.Port}
			})
			fmt.Fprintln(out, renderTable([]string{"Model", "Port"}, rows, nil))
			return nil
		},
	})
	return cameraCmd
}
