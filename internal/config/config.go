package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string

	// Secrets
	InternalSharedSecret string
	OCRAPIKey            string

	// OCR provider (OpenAI-compatible chat-completion endpoint)
	OCRBaseURL        string
	OCRModel          string
	OCRRequestTimeout time.Duration

	// File host used to absolutize relative file URLs
	FileHostBase string

	// Limits
	MaxJSONBodyBytes int64
	MaxFileBytes     int64

	// Concurrency
	MaxConcurrentRequests int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Request timeouts
	ParseTimeout time.Duration

	// Download
	DownloadTimeout time.Duration

	// Poppler / extraction timeouts
	PDFInfoTimeout   time.Duration
	PDFToTextTimeout time.Duration

	// Rasterization
	RasterBinary  string
	RasterTimeout time.Duration

	// Legacy DOC conversion
	DocConvertBinary  string
	DocConvertTimeout time.Duration

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// health
	HealthDegradeRatio float64

	// http
	MaxHeaderBytes int
}

func Load() Config {
	cfg := Config{
		Port: envStr("PORT", "8080"),

		InternalSharedSecret: envStr("INTERNAL_SHARED_SECRET", ""),
		OCRAPIKey:            envStr("OCR_API_KEY", ""),

		OCRBaseURL:        envStr("OCR_BASE_URL", ""),
		OCRModel:          envStr("OCR_MODEL", ""),
		OCRRequestTimeout: envDur("OCR_REQUEST_TIMEOUT", 25*time.Second),

		FileHostBase: envStr("FILE_HOST_BASE", ""),

		MaxJSONBodyBytes: int64(envInt("MAX_JSON_BODY_BYTES", 2<<20)),
		MaxFileBytes:     int64(envInt("MAX_FILE_BYTES", int(200<<20))),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 1)),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		ParseTimeout: envDur("PARSE_TIMEOUT", 300*time.Second),

		DownloadTimeout: envDur("DOWNLOAD_TIMEOUT", 30*time.Second),

		PDFInfoTimeout:   envDur("PDFINFO_TIMEOUT", 5*time.Second),
		PDFToTextTimeout: envDur("PDFTOTEXT_TIMEOUT", 10*time.Second),

		RasterBinary:  envStr("RASTER_BINARY", "pdftoppm"),
		RasterTimeout: envDur("RASTER_TIMEOUT", 60*time.Second),

		DocConvertBinary:  envStr("DOC_CONVERT_BINARY", "antiword"),
		DocConvertTimeout: envDur("DOC_CONVERT_TIMEOUT", 30*time.Second),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 600*time.Millisecond),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		HealthDegradeRatio: envFloat("HEALTH_DEGRADE_RATIO", 0.9),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
		}
	}
	return cfg
}

func (c Config) Validate() error {
	if len(strings.TrimSpace(c.InternalSharedSecret)) < 32 {
		return fmt.Errorf("INTERNAL_SHARED_SECRET must be at least 32 characters")
	}
	return nil
}

// fileOverrides is the YAML overlay shape. Only fields that deployments
// actually vary per-environment are exposed; pointer fields distinguish
// "absent" from zero values.
type fileOverrides struct {
	Port                  *string `yaml:"port"`
	OCRAPIKey             *string `yaml:"ocr_api_key"`
	OCRBaseURL            *string `yaml:"ocr_base_url"`
	OCRModel              *string `yaml:"ocr_model"`
	FileHostBase          *string `yaml:"file_host_base"`
	MaxFileBytes          *int64  `yaml:"max_file_bytes"`
	MaxConcurrentRequests *int64  `yaml:"max_concurrent_requests"`
	DownloadTimeout       *string `yaml:"download_timeout"`
	OCRRequestTimeout     *string `yaml:"ocr_request_timeout"`
	RasterBinary          *string `yaml:"raster_binary"`
	DocConvertBinary      *string `yaml:"doc_convert_binary"`
}

// applyFile overlays values from a YAML file on top of the env-derived
// config. Env still wins for anything the file omits.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov fileOverrides
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if ov.Port != nil {
		c.Port = *ov.Port
	}
	if ov.OCRAPIKey != nil {
		c.OCRAPIKey = *ov.OCRAPIKey
	}
	if ov.OCRBaseURL != nil {
		c.OCRBaseURL = *ov.OCRBaseURL
	}
	if ov.OCRModel != nil {
		c.OCRModel = *ov.OCRModel
	}
	if ov.FileHostBase != nil {
		c.FileHostBase = *ov.FileHostBase
	}
	if ov.MaxFileBytes != nil && *ov.MaxFileBytes > 0 {
		c.MaxFileBytes = *ov.MaxFileBytes
	}
	if ov.MaxConcurrentRequests != nil && *ov.MaxConcurrentRequests > 0 {
		c.MaxConcurrentRequests = *ov.MaxConcurrentRequests
	}
	if ov.DownloadTimeout != nil {
		if d, err := time.ParseDuration(*ov.DownloadTimeout); err == nil && d > 0 {
			c.DownloadTimeout = d
		}
	}
	if ov.OCRRequestTimeout != nil {
		if d, err := time.ParseDuration(*ov.OCRRequestTimeout); err == nil && d > 0 {
			c.OCRRequestTimeout = d
		}
	}
	if ov.RasterBinary != nil {
		c.RasterBinary = *ov.RasterBinary
	}
	if ov.DocConvertBinary != nil {
		c.DocConvertBinary = *ov.DocConvertBinary
	}
	return nil
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
