// Package zipinspect lists the members of a ZIP archive with per-file
// metadata, optionally embedding file contents as base64.
package zipinspect

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Entry describes one non-directory member of the archive. URL is always
// null: no hosting is performed here, downstream decides how to consume
// the content.
type Entry struct {
	Filename      string  `json:"filename"`
	Size          int     `json:"size"`
	MIMEType      string  `json:"mime_type"`
	Extension     string  `json:"extension"`
	SHA256        string  `json:"sha256"`
	URL           *string `json:"url"`
	ContentBase64 string  `json:"content_base64,omitempty"`
}

// LooksLikeZip reports whether the blob starts with the ZIP local file
// header signature.
func LooksLikeZip(blob []byte) bool {
	return len(blob) >= 4 && bytes.Equal(blob[:4], []byte("PK\x03\x04"))
}

// Inspect reads the archive and returns metadata for its files in archive
// order, skipping directories. maxFiles <= 0 means no limit. When
// includeContent is set, each entry carries its content base64-encoded.
func Inspect(data []byte, includeContent bool, maxFiles int) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	entries := []Entry{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if maxFiles > 0 && len(entries) >= maxFiles {
			break
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member %q: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read member %q: %w", f.Name, err)
		}

		sum := sha256.Sum256(content)
		entry := Entry{
			Filename:  f.Name,
			Size:      len(content),
			MIMEType:  mimetype.Detect(content).String(),
			Extension: fileExtension(f.Name),
			SHA256:    hex.EncodeToString(sum[:]),
		}
		if includeContent {
			entry.ContentBase64 = base64.StdEncoding.EncodeToString(content)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func fileExtension(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return strings.ToLower(ext)
}
