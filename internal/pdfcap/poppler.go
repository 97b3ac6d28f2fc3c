package pdfcap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Poppler extracts page text by shelling out to the poppler CLI tools
// (pdfinfo + pdftotext). Availability depends on the binaries being on
// PATH, which varies by deployment.
type Poppler struct {
	infoTimeout time.Duration
	pageTimeout time.Duration
}

func NewPoppler(infoTimeout, pageTimeout time.Duration) *Poppler {
	if infoTimeout <= 0 {
		infoTimeout = 5 * time.Second
	}
	if pageTimeout <= 0 {
		pageTimeout = 10 * time.Second
	}
	return &Poppler{infoTimeout: infoTimeout, pageTimeout: pageTimeout}
}

func (p *Poppler) Name() string { return "poppler" }

func (p *Poppler) Available() bool {
	_, err1 := exec.LookPath("pdftotext")
	_, err2 := exec.LookPath("pdfinfo")
	return err1 == nil && err2 == nil
}

var pageCountRegex = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// PageTexts extracts text for the leading maxPages pages (all pages when
// maxPages <= 0), one pdftotext invocation per page.
func (p *Poppler) PageTexts(ctx context.Context, pdf []byte, maxPages int) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "docparser-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	pages, err := p.pageCount(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	texts := make([]string, 0, pages)
	for page := 1; page <= pages; page++ {
		text, err := p.textForPage(ctx, pdfPath, page)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (p *Poppler) pageCount(ctx context.Context, pdfPath string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.infoTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdfinfo", pdfPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, classifyPopplerErr("pdfinfo", err, ctx, stderr.String())
	}

	m := pageCountRegex.FindStringSubmatch(stdout.String())
	if len(m) != 2 {
		return 0, fmt.Errorf("pdfinfo: pages field not found in output")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > 50000 {
		return 0, fmt.Errorf("pdfinfo: unreasonable page count %q", m[1])
	}
	return n, nil
}

// maxPerPageBytes caps pdftotext output so a cursed PDF can't exhaust memory.
const maxPerPageBytes = 10 << 20

func (p *Poppler) textForPage(ctx context.Context, pdfPath string, page int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.pageTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		"pdftotext",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-layout",
		"-nopgbrk",
		"-enc", "UTF-8",
		pdfPath,
		"-",
	)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start pdftotext: %w", err)
	}

	out, readErr := io.ReadAll(io.LimitReader(stdoutPipe, maxPerPageBytes+1))
	waitErr := cmd.Wait()

	if readErr != nil {
		return "", fmt.Errorf("read pdftotext output: %w", readErr)
	}
	if len(out) > maxPerPageBytes {
		return "", fmt.Errorf("extracted text too large on page %d", page)
	}
	if waitErr != nil {
		return "", classifyPopplerErr(fmt.Sprintf("pdftotext page %d", page), waitErr, ctx, stderr.String())
	}
	return string(out), nil
}

func classifyPopplerErr(tool string, err error, ctx context.Context, stderr string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timeout", tool)
	}
	stderr = strings.TrimSpace(stderr)
	if stderr != "" {
		if containsAny(stderr, "Incorrect password", "Command Line Error: Incorrect password") {
			return fmt.Errorf("PDF is password protected")
		}
		if containsAny(stderr, "PDF file is damaged", "Syntax Error", "Couldn't find trailer dictionary", "May not be a PDF file") {
			return fmt.Errorf("PDF appears to be damaged or invalid")
		}
		if len(stderr) > 300 {
			stderr = stderr[:300] + "..."
		}
		return fmt.Errorf("%s failed: %s", tool, stderr)
	}
	return fmt.Errorf("%s failed: %w", tool, err)
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
