// Package office reads Word documents: DOCX natively via the OOXML zip
// container, legacy DOC through an external conversion capability.
package office

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DocxReader extracts plain text from a DOCX byte buffer.
type DocxReader struct{}

func NewDocxReader() *DocxReader { return &DocxReader{} }

// Extract concatenates all non-empty body paragraph texts, followed by
// all non-empty table-cell texts, each trimmed, joined by newline.
func (r *DocxReader) Extract(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}

	body, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return "", err
	}

	paragraphs, cells := walkDocument(body)

	var parts []string
	for _, p := range paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// walkDocument splits word/document.xml into body-level paragraph texts
// and table-cell texts, each group in document order. Paragraphs inside
// table cells belong to the cell, not the paragraph list.
func walkDocument(b []byte) (paragraphs, cells []string) {
	dec := xml.NewDecoder(bytes.NewReader(b))
	tableDepth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tc":
				if tableDepth > 0 {
					cells = append(cells, cellText(dec))
				}
			case "p":
				if tableDepth == 0 {
					paragraphs = append(paragraphs, paragraphText(dec))
				}
			}
		case xml.EndElement:
			if t.Name.Local == "tbl" && tableDepth > 0 {
				tableDepth--
			}
		}
	}
	return paragraphs, cells
}

// paragraphText consumes one <w:p> subtree and returns its run text.
func paragraphText(dec *xml.Decoder) string {
	var sb strings.Builder
	depth := 1
	inText := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			depth--
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String()
}

// cellText consumes one <w:tc> subtree; the cell's paragraphs are joined
// by newline, matching how a cell reads as a block of text.
func cellText(dec *xml.Decoder) string {
	var parts []string
	var sb strings.Builder
	depth := 1
	inText := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			depth--
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				parts = append(parts, sb.String())
				sb.Reset()
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n")
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("missing %s", name)
}
