package parse

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PDFTextSource is a text-extraction capability over PDF bytes. maxPages
// caps the number of leading pages extracted; <= 0 means all pages.
type PDFTextSource interface {
	Name() string
	PageTexts(ctx context.Context, pdf []byte, maxPages int) ([]string, error)
}

// DocxReader turns DOCX bytes into one concatenated text blob.
type DocxReader interface {
	Extract(data []byte) (string, error)
}

// DocConverter turns legacy DOC bytes into text via an external
// conversion capability.
type DocConverter interface {
	Convert(ctx context.Context, data []byte) (string, error)
}

// Rasterizer renders a PDF's pages as PNG data URLs. An empty slice means
// rendering failed, not a zero-page document.
type Rasterizer interface {
	Render(ctx context.Context, pdf []byte) []string
}

// OCRClient runs the vision-model OCR over a sequence of image data URLs,
// one page at a time, capturing per-page failures inline.
type OCRClient interface {
	Run(ctx context.Context, images []string, prompt string, apiKey, model *string) []PageResult
}

// Capabilities is the capability registry assembled at startup. Nil or
// empty members mean the capability is absent in this deployment;
// dispatch branches on presence, never on failed lookups at call time.
type Capabilities struct {
	PDFText []PDFTextSource // preference order, richest first
	Docx    DocxReader
	Doc     DocConverter
	Raster  Rasterizer
	OCR     OCRClient
}

// Dispatcher routes a classified file to its extraction pipeline. Every
// pipeline catches its own failures and reports a typed error; the
// dispatcher retries nothing.
type Dispatcher struct {
	caps Capabilities
}

func NewDispatcher(caps Capabilities) *Dispatcher {
	return &Dispatcher{caps: caps}
}

// Dispatch runs the pipeline for format over data.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte, format Format, prompt string, req Request) Result {
	switch format {
	case FormatImage:
		return d.processImage(ctx, data, prompt, req)
	case FormatPDF:
		return d.processPDF(ctx, data, prompt, req)
	case FormatDocx:
		return d.processDocx(data, prompt)
	case FormatDoc:
		return d.processDoc(ctx, data, prompt)
	default:
		return errResult(ErrUnsupportedFileType,
			fmt.Sprintf("File type %q is not supported. Supported types: images, PDF, DOCX, DOC", format))
	}
}

func (d *Dispatcher) processImage(ctx context.Context, data []byte, prompt string, req Request) Result {
	// Content type is fixed to image/jpeg regardless of the actual image
	// format; the vision endpoint sniffs the payload itself.
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	pages := d.caps.OCR.Run(ctx, []string{dataURL}, prompt, req.APIKey, req.Model)
	return Result{Pages: pages, Method: MethodOCRAPI}
}

func (d *Dispatcher) processPDF(ctx context.Context, data []byte, prompt string, req Request) Result {
	if d.isScanned(ctx, data) {
		return d.processScannedPDF(ctx, data, prompt, req)
	}

	if len(d.caps.PDFText) == 0 {
		return errResult(ErrPDFLibraryMissing,
			"No PDF text extraction capability available (pdftotext or pdfcpu required)")
	}

	// First capability in preference order; an extraction failure is
	// atomic for the whole document, with no cross-capability retry.
	texts, err := d.caps.PDFText[0].PageTexts(ctx, data, 0)
	if err != nil {
		return errResult(ErrPDFTextFailed, err.Error())
	}

	pages := make([]PageResult, 0, len(texts))
	for i, text := range texts {
		pages = append(pages, PageResult{Page: i + 1, Content: NewPageContent(text, prompt)})
	}
	return Result{Pages: pages, Method: MethodDirectPDFText}
}

// processScannedPDF is the rasterize-then-OCR pipeline. A panic anywhere
// in it (absent capability, SDK misuse) is reported as the OCR-stage
// error rather than a generic processing failure.
func (d *Dispatcher) processScannedPDF(ctx context.Context, data []byte, prompt string, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errResult(ErrScannedPDFOCRFailed, fmt.Sprint(r))
		}
	}()

	images := d.caps.Raster.Render(ctx, data)
	if len(images) == 0 {
		return errResult(ErrPDFConvertFailed, "No images could be rendered from PDF")
	}
	pages := d.caps.OCR.Run(ctx, images, prompt, req.APIKey, req.Model)
	return Result{Pages: pages, Method: MethodOCRAPI}
}

func (d *Dispatcher) processDocx(data []byte, prompt string) Result {
	if d.caps.Docx == nil {
		return errResult(ErrDocxNotSupported, "DOCX reader not available. Cannot process DOCX files.")
	}
	text, err := d.caps.Docx.Extract(data)
	if err != nil {
		return errResult(ErrDocxTextFailed, err.Error())
	}
	return Result{
		Pages:  []PageResult{{Page: 1, Content: NewPageContent(text, prompt)}},
		Method: MethodDirectDOCXText,
	}
}

func (d *Dispatcher) processDoc(ctx context.Context, data []byte, prompt string) Result {
	if d.caps.Doc == nil {
		return docConversionRequired("no DOC conversion capability available")
	}
	text, err := d.caps.Doc.Convert(ctx, data)
	if err != nil {
		return docConversionRequired(err.Error())
	}
	return Result{
		Pages:  []PageResult{{Page: 1, Content: NewPageContent(text, prompt)}},
		Method: MethodDirectDOCText,
	}
}

// docConversionRequired is the terminal guidance error for legacy DOC
// files. There is no automatic OCR fallback for DOC.
func docConversionRequired(reason string) Result {
	return Result{Err: &ErrorResult{
		Kind: ErrDocNeedsConversion,
		Detail: fmt.Sprintf("Cannot process .doc files directly. %s. "+
			"Please convert .doc to .pdf or .docx format, or use OCR processing. "+
			"Alternatively, install a DOC converter (antiword) for direct processing.", reason),
		Suggestion: "Convert DOC to DOCX/PDF format or use OCR via image conversion",
	}}
}

const (
	scannedSamplePages   = 3
	scannedCharThreshold = 50
)

// isScanned decides whether a PDF is image-only by summing trimmed text
// length over the first few pages. A capability that throws is skipped in
// favor of the next one; with no usable capability the PDF is treated as
// scanned, since OCR still produces output where direct extraction cannot.
func (d *Dispatcher) isScanned(ctx context.Context, pdf []byte) bool {
	for _, src := range d.caps.PDFText {
		texts, err := src.PageTexts(ctx, pdf, scannedSamplePages)
		if err != nil {
			continue
		}
		total := 0
		for _, t := range texts {
			total += utf8.RuneCountInString(strings.TrimSpace(t))
		}
		return total < scannedCharThreshold
	}
	return true
}
