package parse

import "testing"

func TestDetectExtensionWinsOverContent(t *testing.T) {
	t.Parallel()

	// PDF magic bytes, but the URL says PNG: extension wins.
	got := Detect("https://files.example.com/scan.png", []byte("%PDF-1.7 rest"))
	if got != FormatImage {
		t.Fatalf("expected image, got %v", got)
	}
}

func TestDetectByExtension(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want Format
	}{
		{"http://h/report.pdf", FormatPDF},
		{"http://h/REPORT.PDF", FormatPDF},
		{"http://h/contract.docx", FormatDocx},
		{"http://h/legacy.doc", FormatDoc},
		{"http://h/photo.jpeg?sig=abc", FormatImage},
		{"http://h/photo.webp", FormatImage},
		{"http://h/data.bin", FormatUnknown},
	}
	for _, c := range cases {
		if got := Detect(c.url, nil); got != c.want {
			t.Fatalf("Detect(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestDetectByMagicBytes(t *testing.T) {
	t.Parallel()

	ole2 := []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1, 0, 0}
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}

	cases := []struct {
		name   string
		sample []byte
		want   Format
	}{
		{"pdf", []byte("%PDF-1.4\n"), FormatPDF},
		{"docx marker word/", []byte("PK\x03\x04....word/document.xml"), FormatDocx},
		{"docx marker content types", []byte("PK\x03\x04....[Content_Types].xml"), FormatDocx},
		{"plain zip stays unknown", []byte("PK\x03\x04....random.txt"), FormatUnknown},
		{"ole2 doc", ole2, FormatDoc},
		{"png", png, FormatImage},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, FormatImage},
		{"gif", []byte("GIF89a..."), FormatImage},
		{"empty", nil, FormatUnknown},
		{"garbage", []byte("hello"), FormatUnknown},
	}
	for _, c := range cases {
		if got := Detect("http://h/file", c.sample); got != c.want {
			t.Fatalf("%s: Detect = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDetectDocxMarkerOutsideWindowStaysUnknown(t *testing.T) {
	t.Parallel()

	sample := make([]byte, 0, 5000)
	sample = append(sample, []byte("PK\x03\x04")...)
	for len(sample) < 4600 {
		sample = append(sample, '.')
	}
	sample = append(sample, []byte("word/document.xml")...)

	if got := Detect("http://h/file", sample); got != FormatUnknown {
		t.Fatalf("marker past 4096 bytes should not classify as docx, got %v", got)
	}
}
