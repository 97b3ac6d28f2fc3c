package office

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types/>`,
		"word/document.xml":   documentXML,
	} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestExtractParagraphsThenTableCells(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<w:document ` + docxNS + `><w:body>
<w:p><w:r><w:t>Title</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Body </w:t></w:r><w:r><w:t>text</w:t></w:r></w:p>
<w:tbl><w:tr>
<w:tc><w:p><w:r><w:t>Cell A</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:r><w:t>Cell B</w:t></w:r></w:p></w:tc>
</w:tr></w:tbl>
<w:p><w:r><w:t>After table</w:t></w:r></w:p>
</w:body></w:document>`

	text, err := NewDocxReader().Extract(buildDocx(t, doc))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	// All body paragraphs first (in order), then all table cells.
	want := "Title\nBody text\nAfter table\nCell A\nCell B"
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
}

func TestExtractSkipsEmptyParagraphs(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<w:document ` + docxNS + `><w:body>
<w:p><w:r><w:t>One</w:t></w:r></w:p>
<w:p/>
<w:p><w:r><w:t>   </w:t></w:r></w:p>
<w:p><w:r><w:t>Two</w:t></w:r></w:p>
</w:body></w:document>`

	text, err := NewDocxReader().Extract(buildDocx(t, doc))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "One\nTwo" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractMultiParagraphCell(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<w:document ` + docxNS + `><w:body>
<w:tbl><w:tr><w:tc>
<w:p><w:r><w:t>line one</w:t></w:r></w:p>
<w:p><w:r><w:t>line two</w:t></w:r></w:p>
</w:tc></w:tr></w:tbl>
</w:body></w:document>`

	text, err := NewDocxReader().Extract(buildDocx(t, doc))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "line one\nline two" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractTabsAndBreaks(t *testing.T) {
	t.Parallel()

	doc := `<?xml version="1.0"?>
<w:document ` + docxNS + `><w:body>
<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>
</w:body></w:document>`

	text, err := NewDocxReader().Extract(buildDocx(t, doc))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "a\tb\nc" {
		t.Fatalf("text = %q", text)
	}
}

func TestExtractRejectsNonZip(t *testing.T) {
	t.Parallel()

	if _, err := NewDocxReader().Extract([]byte("definitely not a zip")); err == nil {
		t.Fatalf("expected container error")
	}
}

func TestExtractRejectsZipWithoutDocument(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("other.txt")
	_, _ = f.Write([]byte("x"))
	_ = zw.Close()

	_, err := NewDocxReader().Extract(buf.Bytes())
	if err == nil || !strings.Contains(err.Error(), "word/document.xml") {
		t.Fatalf("err = %v", err)
	}
}
