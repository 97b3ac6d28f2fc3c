package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/toricodesthings/smart-doc-parser/internal/config"
	"github.com/toricodesthings/smart-doc-parser/internal/jsoncsv"
	"github.com/toricodesthings/smart-doc-parser/internal/ocr"
	"github.com/toricodesthings/smart-doc-parser/internal/office"
	"github.com/toricodesthings/smart-doc-parser/internal/parse"
	"github.com/toricodesthings/smart-doc-parser/internal/pdfcap"
	"github.com/toricodesthings/smart-doc-parser/internal/raster"
	"github.com/toricodesthings/smart-doc-parser/internal/zipinspect"
)

var (
	cfg config.Config

	requestSem *semaphore.Weighted
	engine     *parse.Engine

	// Per-IP rate limiters
	limiters = &sync.Map{}

	metrics = &serverMetrics{}
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func main() {
	_ = godotenv.Load()

	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	requestSem = semaphore.NewWeighted(cfg.MaxConcurrentRequests)

	engine = buildEngine(cfg)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", withInternalAuth(handleMetrics))

	// Document parsing endpoint — all supported file types route through here
	mux.HandleFunc("/parse",
		withInternalAuth(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(handleParse)))))

	// ZIP archive listing endpoint
	mux.HandleFunc("/inspect",
		withInternalAuth(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(handleInspect)))))

	// JSON-array to CSV export endpoint
	mux.HandleFunc("/json-to-csv",
		withInternalAuth(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(handleJSONToCSV)))))

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withLogging(withRecovery(mux)),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	if strings.TrimSpace(cfg.OCRAPIKey) == "" {
		fmt.Fprintln(os.Stderr, "warning: OCR_API_KEY not set (OCR will fail unless requests carry an api_key)")
	}

	go cleanupRateLimiters()

	fmt.Printf("docparser listening on %s (max concurrent: %d)\n",
		srv.Addr, cfg.MaxConcurrentRequests)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

// buildEngine probes for external binaries and assembles the capability
// registry; absent binaries simply leave their capability nil.
func buildEngine(cfg config.Config) *parse.Engine {
	var pdfText []parse.PDFTextSource
	if poppler := pdfcap.NewPoppler(cfg.PDFInfoTimeout, cfg.PDFToTextTimeout); poppler.Available() {
		pdfText = append(pdfText, poppler)
	} else {
		fmt.Fprintln(os.Stderr, "warning: poppler (pdftotext/pdfinfo) not found, falling back to in-process extraction")
	}
	if cpu := pdfcap.NewPDFCPU(); cpu.Available() {
		pdfText = append(pdfText, cpu)
	}

	caps := parse.Capabilities{
		PDFText: pdfText,
		Docx:    office.NewDocxReader(),
		Raster:  raster.New(cfg.RasterBinary, cfg.RasterTimeout),
		OCR: ocr.New(ocr.Config{
			APIKey:  cfg.OCRAPIKey,
			BaseURL: cfg.OCRBaseURL,
			Model:   cfg.OCRModel,
			Timeout: cfg.OCRRequestTimeout,
		}),
	}

	if conv := office.NewDocConverter(cfg.DocConvertBinary, cfg.DocConvertTimeout); conv.Available() {
		caps.Doc = conv
	} else {
		fmt.Fprintf(os.Stderr, "warning: %s not found, legacy .doc files will be rejected\n", cfg.DocConvertBinary)
	}

	return parse.NewEngine(parse.NewDispatcher(caps), cfg.FileHostBase, cfg.MaxFileBytes, cfg.DownloadTimeout)
}

func cleanupRateLimiters() {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := metrics.get()
		fmt.Printf("[stats] active=%d total=%d goroutines=%d mem=%dMB\n",
			active, total, runtime.NumGoroutine(), m.Alloc/(1<<20))

		limiters = &sync.Map{}
	}
}

// ---------- Handlers ----------

func handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": "1.0.0",
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

func handleParse(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[parse.Request](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, parse.ErrRequestFailed, sanitizeError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.ParseTimeout)
	defer cancel()

	msgs := engine.Handle(ctx, req)
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type inspectRequest struct {
	FileURL           string `json:"file_url"`
	IncludeContentB64 bool   `json:"include_content_b64"`
	MaxFiles          int    `json:"max_files"`
}

// handleInspect mirrors the parse endpoint's message contract: a
// human-readable text message plus a structured JSON message, for both
// success and failure.
func handleInspect(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[inspectRequest](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, parse.ErrRequestFailed, sanitizeError(err))
		return
	}

	fileURL := strings.TrimSpace(req.FileURL)
	if fileURL == "" {
		writeMessages(w,
			parse.TextMessage("Missing required parameter: file_url"),
			parse.JSONMessage(map[string]any{"error": parse.ErrInvalidFileURL}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.ParseTimeout)
	defer cancel()

	data, _, err := parse.Download(ctx, fileURL, cfg.MaxFileBytes, cfg.DownloadTimeout)
	if err != nil {
		detail := sanitizeError(err)
		writeMessages(w,
			parse.TextMessage("Download failed: "+detail),
			parse.JSONMessage(map[string]any{"error": parse.ErrDownloadFailed, "detail": detail}))
		return
	}

	if !zipinspect.LooksLikeZip(data) {
		writeMessages(w,
			parse.TextMessage("Provided file is not a ZIP archive"),
			parse.JSONMessage(map[string]any{"error": "not_zip"}))
		return
	}

	entries, err := zipinspect.Inspect(data, req.IncludeContentB64, req.MaxFiles)
	if err != nil {
		detail := sanitizeError(err)
		writeMessages(w,
			parse.TextMessage("Unzip failed: "+detail),
			parse.JSONMessage(map[string]any{"error": "unzip_failed", "detail": detail}))
		return
	}

	writeMessages(w,
		parse.TextMessage(fmt.Sprintf("Found %d files in ZIP", len(entries))),
		parse.JSONMessage(map[string]any{
			"zip": map[string]any{
				"source_url": fileURL,
				"num_files":  len(entries),
			},
			"files": entries,
		}))
}

type jsonToCSVRequest struct {
	JSONData json.RawMessage `json:"json_data"`
	Filename string          `json:"filename"`
}

// handleJSONToCSV exports a JSON array of records as a downloadable CSV
// blob plus a text summary. Conversion errors come back as a single text
// message; only malformed request bodies use the transport error shape.
func handleJSONToCSV(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[jsonToCSVRequest](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, parse.ErrRequestFailed, sanitizeError(err))
		return
	}

	csvText, inputs, err := jsoncsv.Convert(req.JSONData)
	if err != nil {
		writeMessages(w, parse.TextMessage(err.Error()))
		return
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "export_" + time.Now().Format("20060102_150405")
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		filename += ".csv"
	}

	rows := strings.Count(csvText, "\r\n")

	// BOM prefix so spreadsheet tools pick up UTF-8.
	blob := []byte("\ufeff" + csvText)

	writeMessages(w,
		parse.BlobMessage(blob, map[string]string{
			"mime_type": "text/csv",
			"filename":  filename,
		}),
		parse.TextMessage(fmt.Sprintf(
			"CSV file '%s' generated successfully. Processed %d JSON input(s) into %d CSV rows.",
			filename, inputs, rows)))
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	shared := cfg.InternalSharedSecret
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Auth")
		if subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer requestSem.Release(1)

		metrics.incActive()
		defer metrics.decActive()

		next(w, r)
	}
}

func withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := getRateLimiter(ip)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "panic: %v\n", err)
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		fmt.Printf("%s %s -> %d (%s)\n",
			r.Method, sanitizeLogString(r.URL.Path), ww.status, time.Since(start))
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func getRateLimiter(ip string) *rate.Limiter {
	if v, ok := limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	limiter := rate.NewLimiter(rate.Every(every), burst)
	limiters.Store(ip, limiter)
	return limiter
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, err
	}

	// Ensure there's nothing else after the first JSON value
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}

	return out, nil
}

func writeMessages(w http.ResponseWriter, msgs ...parse.Message) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
