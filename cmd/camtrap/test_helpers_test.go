package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"camtrap/internal/capture"
	"camtrap/internal/config"
	"camtrap/internal/feed"
	"camtrap/internal/logging"
	"camtrap/internal/motion"
	"camtrap/internal/region"
	"camtrap/internal/testsupport"
	"camtrap/internal/trigger"
	"camtrap/internal/web"
)

type fakeDetector struct {
	preview *feed.Slot[[]byte]
	board   *feed.StatusBoard

	mu        sync.Mutex
	recenters [][2]int
}

func (f *fakeDetector) Preview() *feed.Slot[[]byte] { return f.preview }
func (f *fakeDetector) Status() *feed.StatusBoard   { return f.board }

func (f *fakeDetector) Recenter(x, y int) (region.Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recenters = append(f.recenters, [2]int{x, y})
	return region.Region{CenterX: x, CenterY: y, Side: 200}, nil
}

func (f *fakeDetector) Snapshot() motion.Snapshot {
	return motion.Snapshot{
		Status:  f.board.Current(),
		Trigger: trigger.Snapshot{State: trigger.Armed, MinArea: 800, Window: 5},
		Region:  region.Region{CenterX: 250, CenterY: 180, Side: 200},
		FPS:     30,
		Running: true,
	}
}

type fakeDevice struct {
	mu       sync.Mutex
	captures int
	err      error
	status   capture.Status
}

func (f *fakeDevice) Capture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.captures++
	return nil
}

func (f *fakeDevice) Status() capture.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	apiURL     string
	detector   *fakeDetector
	device     *fakeDevice
	logs       *logging.StreamHub
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	det := &fakeDetector{
		preview: feed.NewSlot[[]byte](),
		board:   feed.NewStatusBoard(motion.StatusUndetected),
	}
	dev := &fakeDevice{status: capture.Status{
		Stats: capture.Stats{Captures: 3, Downloads: 3, Recoveries: 1, HandleOpen: true, Running: true},
	}}
	hub := logging.NewStreamHub(64)

	srv := web.New(web.Options{
		Bind:          "127.0.0.1:0",
		Detector:      det,
		Device:        dev,
		Logs:          hub,
		FollowTimeout: 200 * time.Millisecond,
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("start web server: %v", err)
	}
	t.Cleanup(func() {
		det.preview.Close()
		det.board.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		apiURL:     "http://" + srv.Addr(),
		detector:   det,
		device:     dev,
		logs:       hub,
	}
}

func runCLI(t *testing.T, args []string, apiURL, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiURL != "" {
		flags = append(flags, "--api", apiURL)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndownload_dir = %q\nlog_dir = %q\nregion_file = %q\napi_bind = %q\n",
		cfg.Paths.DownloadDir,
		cfg.Paths.LogDir,
		cfg.Paths.RegionFile,
		cfg.Paths.APIBind,
	)
	if cfg.Video.Source != "" {
		content += fmt.Sprintf("\n[video]\nsource = %q\n", cfg.Video.Source)
	}
	if cfg.Notifications.NtfyTopic != "" {
		content += fmt.Sprintf("\n[notifications]\nntfy_topic = %q\n", cfg.Notifications.NtfyTopic)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}
