package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/trajalign/align"
)

// Helper function to build a pose whose camera center is c
func poseAt(c [3]float64) align.Extrinsic {
	return align.Extrinsic{
		{1, 0, 0, -c[0]},
		{0, 1, 0, -c[1]},
		{0, 0, 1, -c[2]},
	}
}

// Helper function to save a pose collection fixture
func savePoseFile(t *testing.T, path string, pc align.PoseCollection) {
	t.Helper()
	data, err := json.Marshal(pc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

// writeDataset lays out one clip with 5 frames (4 posed in the source, 4 in
// the destination at twice the scale and shifted) and one scan covering it.
func writeDataset(t *testing.T) (dir string, configPath string) {
	t.Helper()
	dir = t.TempDir()

	clipSrc := align.PoseMap{}
	clipDst := align.PoseMap{}
	scanSrc := align.PoseMap{}
	scanDst := align.PoseMap{}
	for i := 0; i < 4; i++ {
		angle := float64(i) * math.Pi / 3
		c := [3]float64{math.Cos(angle), math.Sin(angle), 0.1 * float64(i)}
		d := [3]float64{2*c[0] + 10, 2*c[1] - 5, 2*c[2] + 1}
		name := fmt.Sprintf("color_%07d.jpg", i)
		clipSrc[name] = poseAt(c)
		clipDst[name] = poseAt(d)
		scanSrc["clipA/"+name] = poseAt(c)
		scanDst["clipA/"+name] = poseAt(d)
	}

	savePoseFile(t, filepath.Join(dir, "src.json"), align.PoseCollection{"clipA": clipSrc})
	savePoseFile(t, filepath.Join(dir, "dst.json"), align.PoseCollection{"clipA": clipDst})
	savePoseFile(t, filepath.Join(dir, "scan_src.json"), align.PoseCollection{"scan1": scanSrc})
	savePoseFile(t, filepath.Join(dir, "scan_dst.json"), align.PoseCollection{"scan1": scanDst})

	framesDir := filepath.Join(dir, "frames", "clipA")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(framesDir, fmt.Sprintf("color_%07d.jpg", i)), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "scans", "scan1", "database", "clipA"), 0755); err != nil {
		t.Fatal(err)
	}

	config := fmt.Sprintf(`split: val
framesRoot: %[1]s/frames
splits:
  val:
    clips: {source: %[1]s/src.json, dest: %[1]s/dst.json}
    scans: {source: %[1]s/scan_src.json, dest: %[1]s/scan_dst.json}
    scanRoot: %[1]s/scans
    outputDir: %[1]s/out
export:
  ply: true
  poses: true
  transformCache: transforms.json
store:
  path: %[1]s/results.db
`, dir)
	configPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, configPath
}

func TestNewApp(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(&out)
	if app == nil {
		t.Fatal("NewApp returned nil")
	}
	if app.Out != &out {
		t.Error("Out should be the given writer")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp(nil)
	app.ApplyOptions(AppOptions{
		ConfigFile: "test-config.yaml",
		Split:      "test",
		FramesRoot: "/frames",
		OutputDir:  "/out",
		Workers:    2,
		Filter:     true,
		FilterSet:  true,
		Quiet:      true,
	})

	if app.ConfigFile != "test-config.yaml" {
		t.Errorf("ConfigFile = %s, want test-config.yaml", app.ConfigFile)
	}
	if app.Split != "test" || app.FramesRoot != "/frames" || app.OutputDir != "/out" {
		t.Errorf("paths not applied: %+v", app)
	}
	if app.Workers != 2 || !app.Filter || !app.FilterSet || !app.Quiet {
		t.Errorf("flags not applied: %+v", app)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	_, configPath := writeDataset(t)
	app := NewApp(nil)
	app.ApplyOptions(AppOptions{
		ConfigFile: configPath,
		FramesRoot: "/elsewhere",
		OutputDir:  "/custom",
		Workers:    7,
		Filter:     true,
		FilterSet:  true,
	})

	cfg, err := app.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.FramesRoot != "/elsewhere" {
		t.Errorf("FramesRoot = %s", cfg.FramesRoot)
	}
	if cfg.ActiveSplit().OutputDir != "/custom" {
		t.Errorf("OutputDir = %s", cfg.ActiveSplit().OutputDir)
	}
	if cfg.Workers != 7 || !cfg.Filter.Enabled {
		t.Errorf("Workers/Filter not applied: %+v", cfg)
	}
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	app := NewApp(nil)
	app.ApplyOptions(AppOptions{Split: "train"})
	if _, err := app.LoadConfig(); err == nil {
		t.Error("expected error for unknown split")
	}
}

func TestApp_Run(t *testing.T) {
	dir, configPath := writeDataset(t)

	var out bytes.Buffer
	app := NewApp(&out)
	app.ApplyOptions(AppOptions{ConfigFile: configPath, Quiet: true})
	defer align.SetLogger(nil)

	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Frame 4 has no source pose in either pass.
	want := "Clips: 1/1 (100.00), Frames 4/5 (80.00)"
	if !strings.Contains(out.String(), want) {
		t.Errorf("output = %q, want it to contain %q", out.String(), want)
	}

	res := app.Report.ClipResults[0]
	if !res.OK() {
		t.Fatalf("clip fit failed: %v", res.Err)
	}
	if math.Abs(res.Transform.S-2) > 1e-6 {
		t.Errorf("scale = %g, want 2", res.Transform.S)
	}

	for _, rel := range []string{
		"out/clip/clipA/centers.ply",
		"out/clip/clipA/clipA.json",
		"out/scan/scan1/clipA.json",
		"out/transforms.json",
		"results.db",
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("expected %s: %v", rel, err)
		}
	}
}

func TestApp_RunReusesCachedTransform(t *testing.T) {
	dir, configPath := writeDataset(t)
	defer align.SetLogger(nil)

	first := NewApp(&bytes.Buffer{})
	first.ApplyOptions(AppOptions{ConfigFile: configPath, Quiet: true})
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Keep two destination poses: too few to fit clipA again.
	dst, err := align.LoadPoseCollection(filepath.Join(dir, "dst.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"color_0000002.jpg", "color_0000003.jpg"} {
		delete(dst["clipA"], name)
	}
	savePoseFile(t, filepath.Join(dir, "dst.json"), dst)

	config, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	config = []byte(strings.Replace(string(config), "export:\n", "export:\n  reuseTransforms: true\n", 1))
	if err := os.WriteFile(configPath, config, 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	second := NewApp(&out)
	second.ApplyOptions(AppOptions{ConfigFile: configPath, Quiet: true})
	if err := second.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	res := second.Report.ClipResults[0]
	if !res.OK() || !res.Reused {
		t.Fatalf("expected clipA to reuse the cached transform, got err=%v reused=%v", res.Err, res.Reused)
	}
	if math.Abs(res.Transform.S-2) > 1e-6 {
		t.Errorf("scale = %g, want 2", res.Transform.S)
	}
	if got := res.Clips[0].Validity.Count(); got != 4 {
		t.Errorf("valid frames = %d, want 4", got)
	}
}

func TestApp_RunMissingInput(t *testing.T) {
	dir, configPath := writeDataset(t)
	if err := os.Remove(filepath.Join(dir, "dst.json")); err != nil {
		t.Fatal(err)
	}

	app := NewApp(&bytes.Buffer{})
	app.ApplyOptions(AppOptions{ConfigFile: configPath, Quiet: true})
	defer align.SetLogger(nil)

	err := app.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "dst.json") {
		t.Errorf("expected error naming dst.json, got %v", err)
	}
}

func TestApp_RunCancelled(t *testing.T) {
	_, configPath := writeDataset(t)

	var out bytes.Buffer
	app := NewApp(&out)
	app.ApplyOptions(AppOptions{ConfigFile: configPath, Quiet: true})
	defer align.SetLogger(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := app.Run(ctx)
	if err == nil {
		t.Fatal("expected an error for a cancelled run")
	}
	// The partial summary is still printed.
	if !strings.Contains(out.String(), "Clips: 0/1 (0.00), Frames 0/5 (0.00)") {
		t.Errorf("output = %q", out.String())
	}
}
