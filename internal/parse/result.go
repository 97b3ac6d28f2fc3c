package parse

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Extraction method tags carried in the structured payload.
const (
	MethodDirectPDFText  = "direct_pdf_text"
	MethodDirectDOCXText = "direct_docx_text"
	MethodDirectDOCText  = "direct_doc_text"
	MethodOCRAPI         = "ocr_api"
)

// Error kinds surfaced through the structured channel.
const (
	ErrInvalidFileURL      = "invalid_file_url"
	ErrDownloadFailed      = "download_failed"
	ErrUnsupportedFileType = "unsupported_file_type"
	ErrDocxNotSupported    = "docx_not_supported"
	ErrPDFLibraryMissing   = "pdf_library_missing"
	ErrPDFTextFailed       = "pdf_text_extraction_failed"
	ErrDocxTextFailed      = "docx_text_extraction_failed"
	ErrDocNeedsConversion  = "doc_processing_requires_conversion"
	ErrPDFConvertFailed    = "pdf_convert_failed"
	ErrScannedPDFOCRFailed = "scanned_pdf_ocr_failed"
	ErrProcessingFailed    = "processing_failed"
	ErrRequestFailed       = "request_failed"
)

// ErrorResult is the structured error payload.
type ErrorResult struct {
	Kind       string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	Value      string `json:"value,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// PageResult is one page of an extraction. Content holds either a
// PageContent (direct-text paths) or whatever the OCR model returned
// (opaque JSON-like data). Error is set instead of Content when a
// per-page OCR call failed.
type PageResult struct {
	Page    int    `json:"page"`
	Content any    `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PageSet is the success payload shape.
type PageSet struct {
	Pages  []PageResult `json:"pages"`
	Method string       `json:"extraction_method"`
}

// Result is the outcome of one dispatch: a page set or a top-level error,
// never both.
type Result struct {
	Pages  []PageResult
	Method string
	Err    *ErrorResult
}

func errResult(kind, detail string) Result {
	return Result{Err: &ErrorResult{Kind: kind, Detail: detail}}
}

// Payload returns the value serialized on the structured channel.
func (r Result) Payload() any {
	if r.Err != nil {
		return r.Err
	}
	return PageSet{Pages: r.Pages, Method: r.Method}
}

// PageContent is the per-page content produced by the direct-text paths.
// Counts are derived from RawText at construction and never set elsewhere.
type PageContent struct {
	RawText         string         `json:"raw_text"`
	ExtractedFields map[string]any `json:"extracted_fields"`
	WordCount       int            `json:"word_count,omitempty"`
	CharacterCount  int            `json:"character_count,omitempty"`
}

// NewPageContent builds page content from extracted text and the
// prompt-gated field sieve. Whitespace-only text collapses to the empty
// shape with no counts.
func NewPageContent(text, prompt string) PageContent {
	text = strings.TrimSpace(text)
	if text == "" {
		return PageContent{ExtractedFields: map[string]any{}}
	}
	return PageContent{
		RawText:         text,
		ExtractedFields: ExtractFields(text, prompt),
		WordCount:       len(strings.Fields(text)),
		CharacterCount:  utf8.RuneCountInString(text),
	}
}

// Message is one unit of the outbound two-channel protocol. Blob carries
// generated file content base64-encoded, with Meta describing it.
type Message struct {
	Type string            `json:"type"`
	Text string            `json:"text,omitempty"`
	JSON any               `json:"json,omitempty"`
	Blob string            `json:"blob,omitempty"`
	Meta map[string]string `json:"meta,omitempty"`
}

func TextMessage(text string) Message { return Message{Type: "text", Text: text} }
func JSONMessage(v any) Message       { return Message{Type: "json", JSON: v} }

func BlobMessage(blob []byte, meta map[string]string) Message {
	return Message{Type: "blob", Blob: base64.StdEncoding.EncodeToString(blob), Meta: meta}
}

// RenderText serializes v for the plain-text channel. Unicode characters
// are emitted literally; multilingual content must survive this rendering
// byte-for-byte.
func RenderText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// SafeJSONLoads parses s as JSON, wrapping unparseable text instead of
// dropping it.
func SafeJSONLoads(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return map[string]any{"raw": s}
	}
	return v
}
