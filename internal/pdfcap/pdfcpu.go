package pdfcap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFCPU extracts page text in-process with the pdfcpu library by parsing
// text-showing operators out of each page's content stream. Less faithful
// than poppler's layout engine, but always present in the build.
type PDFCPU struct{}

func NewPDFCPU() *PDFCPU { return &PDFCPU{} }

func (e *PDFCPU) Name() string    { return "pdfcpu" }
func (e *PDFCPU) Available() bool { return true }

func (e *PDFCPU) PageTexts(ctx context.Context, pdf []byte, maxPages int) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	pages := pdfCtx.PageCount
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	texts := make([]string, 0, pages)
	for pageNr := 1; pageNr <= pages; pageNr++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		texts = append(texts, pageText(pdfCtx, pageNr))
	}
	return texts, nil
}

// pageText reads one page's content stream and recovers its shown text.
// Pages whose content cannot be read yield an empty string rather than
// failing the document.
func pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromContentStream(data)
}

// textFromContentStream walks content-stream lines for the text-showing
// operators Tj, TJ and ', plus the positioning operators Td/TD/T* that
// imply word and line breaks.
func textFromContentStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, lit := range stringLiterals(line) {
				sb.WriteString(decodePDFString(lit))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, lit := range stringLiterals(line) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(lit))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return normalizeStreamText(sb.String())
}

// stringLiterals returns the contents of parenthesized PDF string
// literals on a line, honoring backslash escapes and nested parens.
func stringLiterals(line []byte) [][]byte {
	var out [][]byte
	depth := 0
	var cur []byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' && i+1 < len(line) && depth > 0 {
			cur = append(cur, c, line[i+1])
			i++
			continue
		}
		switch c {
		case '(':
			if depth > 0 {
				cur = append(cur, c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				out = append(out, cur)
				cur = nil
			} else if depth > 0 {
				cur = append(cur, c)
			}
		default:
			if depth > 0 {
				cur = append(cur, c)
			}
		}
	}
	return out
}

// decodePDFString resolves the standard PDF string escapes, including
// octal byte values.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// normalizeStreamText collapses runs of whitespace and drops
// non-printable runes recovered from the stream.
func normalizeStreamText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			sb.WriteRune('\n')
			prevSpace = true
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
