// Package raster renders PDF pages to PNG data URLs for the OCR path.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// renderDPI is 2x the 72dpi PDF base unit, matching the fixed 2x scale
// factor used for OCR input.
const renderDPI = 144

// Renderer shells out to pdftoppm to rasterize every page of a PDF.
type Renderer struct {
	binary  string
	timeout time.Duration
}

func New(binary string, timeout time.Duration) *Renderer {
	if strings.TrimSpace(binary) == "" {
		binary = "pdftoppm"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Renderer{binary: binary, timeout: timeout}
}

// Render returns one data:image/png;base64 URL per page, in page order.
// Any failure yields an empty slice; callers must treat empty as
// "rendering failed", never as a zero-page document.
func (r *Renderer) Render(ctx context.Context, pdf []byte) []string {
	tmpDir, err := os.MkdirTemp("", "docparser-raster-*")
	if err != nil {
		return nil
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, r.binary, "-png", "-r", strconv.Itoa(renderDPI), pdfPath, outPrefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "page") && strings.HasSuffix(name, ".png") {
			names = append(names, name)
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(names)

	urls := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			return nil
		}
		urls = append(urls, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return urls
}
