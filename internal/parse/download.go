package parse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Download fetches url into memory and sniffs the content MIME type. The
// returned buffer is owned by the calling request flow; nothing is cached
// across requests.
func Download(ctx context.Context, url string, maxBytes int64, timeout time.Duration) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("User-Agent", "smart-doc-parser/1.0")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	lr := &io.LimitedReader{R: resp.Body, N: maxBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("file exceeds %dMB limit", maxBytes/(1<<20))
	}

	mt := strings.ToLower(strings.TrimSpace(mimetype.Detect(data).String()))
	return data, mt, nil
}
