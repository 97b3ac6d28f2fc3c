package parse

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewPageContentCounts(t *testing.T) {
	t.Parallel()

	pc := NewPageContent("  hello world  ", "")
	if pc.RawText != "hello world" {
		t.Fatalf("raw text = %q", pc.RawText)
	}
	if pc.WordCount != 2 {
		t.Fatalf("word count = %d", pc.WordCount)
	}
	if pc.CharacterCount != 11 {
		t.Fatalf("character count = %d", pc.CharacterCount)
	}
}

func TestNewPageContentCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	pc := NewPageContent("日本語 テスト", "")
	if pc.WordCount != 2 {
		t.Fatalf("word count = %d", pc.WordCount)
	}
	if pc.CharacterCount != 7 {
		t.Fatalf("character count = %d, want rune count", pc.CharacterCount)
	}
}

func TestNewPageContentEmptyShape(t *testing.T) {
	t.Parallel()

	pc := NewPageContent("   \n\t ", "find the email")

	raw, err := json.Marshal(pc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"raw_text":"","extracted_fields":{}}` {
		t.Fatalf("empty shape = %s", raw)
	}
}

func TestRenderTextKeepsUnicodeLiteral(t *testing.T) {
	t.Parallel()

	out := RenderText(map[string]string{"text": "中文 héllo"})
	if !strings.Contains(out, "中文 héllo") {
		t.Fatalf("unicode should be literal, got %q", out)
	}
	if strings.Contains(out, `\u`) {
		t.Fatalf("unexpected escape sequence in %q", out)
	}
	if strings.HasSuffix(out, "\n") {
		t.Fatalf("trailing newline not trimmed")
	}
}

func TestRenderTextDoesNotEscapeHTML(t *testing.T) {
	t.Parallel()

	out := RenderText(map[string]string{"text": "a<b>&c"})
	if !strings.Contains(out, "a<b>&c") {
		t.Fatalf("html characters should be literal, got %q", out)
	}
}

func TestSafeJSONLoads(t *testing.T) {
	t.Parallel()

	v := SafeJSONLoads(`{"invoice":"42"}`)
	m, ok := v.(map[string]any)
	if !ok || m["invoice"] != "42" {
		t.Fatalf("parsed value = %v", v)
	}

	v = SafeJSONLoads("the model replied in prose")
	m, ok = v.(map[string]any)
	if !ok || m["raw"] != "the model replied in prose" {
		t.Fatalf("raw wrapper = %v", v)
	}
}

func TestResultPayload(t *testing.T) {
	t.Parallel()

	errRes := errResult(ErrDownloadFailed, "boom")
	if _, ok := errRes.Payload().(*ErrorResult); !ok {
		t.Fatalf("error result should surface the error payload")
	}

	ok := Result{Pages: []PageResult{{Page: 1}}, Method: MethodDirectPDFText}
	ps, isSet := ok.Payload().(PageSet)
	if !isSet || ps.Method != MethodDirectPDFText || len(ps.Pages) != 1 {
		t.Fatalf("payload = %#v", ok.Payload())
	}
}

func TestPageSetJSONShape(t *testing.T) {
	t.Parallel()

	ps := PageSet{
		Pages:  []PageResult{{Page: 1, Content: NewPageContent("hi there", "")}},
		Method: MethodDirectDOCXText,
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["extraction_method"] != MethodDirectDOCXText {
		t.Fatalf("extraction_method = %v", decoded["extraction_method"])
	}
	if _, ok := decoded["pages"].([]any); !ok {
		t.Fatalf("pages missing: %s", raw)
	}
}
