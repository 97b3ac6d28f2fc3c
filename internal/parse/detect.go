package parse

import (
	"bytes"
	"net/url"
	"strings"
)

// Format is the detected file format tag. Derived per request, never stored.
type Format int

const (
	FormatUnknown Format = iota
	FormatImage
	FormatPDF
	FormatDocx
	FormatDoc
)

func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatPDF:
		return "pdf"
	case FormatDocx:
		return "docx"
	case FormatDoc:
		return "doc"
	default:
		return "unknown"
	}
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}

var imageSignatures = [][]byte{
	{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, // PNG
	{0xff, 0xd8, 0xff},                            // JPEG
	[]byte("GIF8"),                                // GIF
	[]byte("RIFF"),                                // WebP (partial)
	[]byte("BM"),                                  // BMP
}

// compoundFileSignature is the legacy OLE2 container header (.doc).
var compoundFileSignature = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// Detect classifies a resource by locator extension first, then by leading
// bytes of the sample. Extension always wins over content. Pure over its
// two inputs: no network, no filesystem.
func Detect(locator string, sample []byte) Format {
	path := locator
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.ToLower(path)

	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return FormatImage
		}
	}
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return FormatPDF
	case strings.HasSuffix(path, ".docx"):
		return FormatDocx
	case strings.HasSuffix(path, ".doc"):
		return FormatDoc
	}

	if len(sample) == 0 {
		return FormatUnknown
	}

	if bytes.HasPrefix(sample, []byte("%PDF-")) {
		return FormatPDF
	}

	// A DOCX is a ZIP container; require OOXML evidence near the front.
	// A ZIP without that marker in the first 4096 bytes stays unknown —
	// this detector does not do exhaustive ZIP introspection.
	if bytes.HasPrefix(sample, []byte("PK\x03\x04")) {
		head := sample
		if len(head) > 4096 {
			head = head[:4096]
		}
		if bytes.Contains(head, []byte("word/")) || bytes.Contains(head, []byte("[Content_Types].xml")) {
			return FormatDocx
		}
	}

	if bytes.HasPrefix(sample, compoundFileSignature) {
		return FormatDoc
	}

	for _, sig := range imageSignatures {
		if bytes.HasPrefix(sample, sig) {
			return FormatImage
		}
	}

	return FormatUnknown
}
