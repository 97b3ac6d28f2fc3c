package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.MaxConcurrentRequests != 1 {
		t.Fatalf("max concurrent = %d", cfg.MaxConcurrentRequests)
	}
	if cfg.DownloadTimeout != 30*time.Second {
		t.Fatalf("download timeout = %v", cfg.DownloadTimeout)
	}
	if cfg.RasterBinary != "pdftoppm" || cfg.DocConvertBinary != "antiword" {
		t.Fatalf("binaries = %q, %q", cfg.RasterBinary, cfg.DocConvertBinary)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_CONCURRENT_REQUESTS", "4")
	t.Setenv("OCR_MODEL", "custom-vl")

	cfg := Load()
	if cfg.Port != "9090" || cfg.MaxConcurrentRequests != 4 || cfg.OCRModel != "custom-vl" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_REQUESTS", "zero")
	t.Setenv("DOWNLOAD_TIMEOUT", "-5s")

	cfg := Load()
	if cfg.MaxConcurrentRequests != 1 {
		t.Fatalf("max concurrent = %d", cfg.MaxConcurrentRequests)
	}
	if cfg.DownloadTimeout != 30*time.Second {
		t.Fatalf("download timeout = %v", cfg.DownloadTimeout)
	}
}

func TestConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	overlay := "port: \"7070\"\nocr_model: overlay-model\ndownload_timeout: 45s\nmax_concurrent_requests: 3\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg := Load()
	if cfg.Port != "7070" || cfg.OCRModel != "overlay-model" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DownloadTimeout != 45*time.Second || cfg.MaxConcurrentRequests != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestConfigFileOverlayIgnoresBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{{{{ not yaml"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "6060")

	cfg := Load()
	if cfg.Port != "6060" {
		t.Fatalf("env config should survive a bad overlay, got %+v", cfg)
	}
}

func TestValidateSecretLength(t *testing.T) {
	cfg := Config{InternalSharedSecret: "short"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("short secret should fail validation")
	}

	cfg.InternalSharedSecret = "0123456789abcdef0123456789abcdef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid secret rejected: %v", err)
	}
}
