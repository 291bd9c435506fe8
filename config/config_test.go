package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "qrcam.yaml")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scan.PreviewEveryNth != 2 || cfg.Scan.JPEGQuality != 25 {
		t.Fatalf("unexpected defaults %+v", cfg.Scan)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 {
		t.Fatalf("unexpected resolution %+v", cfg.Camera)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
listen: ":9000"
camera:
  width: 640
  height: 480
scan:
  grayscale_normalize: true
  preview_every_nth: 1
  inter_frame_delay: 100ms
  jpeg_quality: 20
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	o := cfg.Options()
	if !o.GrayscaleNormalize || o.PreviewEveryNth != 1 || o.InterFrameDelay != 100*time.Millisecond || o.JPEGQuality != 20 {
		t.Fatalf("unexpected options %+v", o)
	}
	if o.Resolution.Width != 640 || o.Resolution.Height != 480 {
		t.Fatalf("unexpected resolution %+v", o.Resolution)
	}
	// 未出现的字段保持默认值
	if cfg.Camera.ReadTimeout != 5*time.Second {
		t.Fatalf("read timeout = %s", cfg.Camera.ReadTimeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"resolution": "camera:\n  width: 0\n",
		"quality":    "scan:\n  jpeg_quality: 150\n",
		"delay":      "scan:\n  inter_frame_delay: -1s\n",
		"syntax":     "scan: [",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromFlags(t *testing.T) {
	p := writeFile(t, "listen: \":9000\"\n")
	fs := flag.NewFlagSet("qrcam", flag.ContinueOnError)
	cfg, err := FromFlags(fs, []string{"-config", p, "-listen", ":7000", "-replay", "frames", "-gray"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Listen != ":7000" || cfg.ReplayDir != "frames" || !cfg.Scan.GrayscaleNormalize {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestBackendReplay(t *testing.T) {
	cfg := Default()
	cfg.ReplayDir = t.TempDir()
	if _, err := cfg.Backend(); err == nil {
		t.Fatal("expected error for empty replay dir")
	}
}
