package office

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// DocConverter extracts text from legacy OLE2 .doc files by shelling out
// to an external converter (antiword by default). Availability depends on
// the binary being on PATH.
type DocConverter struct {
	binary  string
	timeout time.Duration
}

func NewDocConverter(binary string, timeout time.Duration) *DocConverter {
	if strings.TrimSpace(binary) == "" {
		binary = "antiword"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DocConverter{binary: binary, timeout: timeout}
}

func (c *DocConverter) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Convert writes the document to a temp file, runs the converter, and
// decodes its output. Legacy .doc files from East Asian locales often
// come out in a regional codepage rather than UTF-8, so the output is
// tried against a ladder of decoders before giving up.
func (c *DocConverter) Convert(ctx context.Context, data []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "docparser-doc-*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	docPath := filepath.Join(tmpDir, "input.doc")
	if err := os.WriteFile(docPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp doc: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, docPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%s timeout", c.binary)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		return "", fmt.Errorf("%s failed: %s", c.binary, msg)
	}

	return decodeConverterOutput(stdout.Bytes()), nil
}

// docDecoders are tried in order when the converter output is not valid
// UTF-8. GB18030 is a superset of GB2312, so one decoder covers both.
var docDecoders = []encoding.Encoding{
	simplifiedchinese.GBK,
	simplifiedchinese.GB18030,
	traditionalchinese.Big5,
}

func decodeConverterOutput(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	for _, enc := range docDecoders {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return string(decoded)
	}
	// Lossy last resort: invalid runs become U+FFFD so the damage stays
	// visible instead of silently shortening the text.
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}
