package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// chatServer fakes the OpenAI-compatible chat-completion endpoint,
// answering from responses in call order.
func chatServer(t *testing.T, responses []func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	var calls int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1) - 1
		if int(n) >= len(responses) {
			t.Errorf("unexpected extra call %d", n)
			http.Error(w, "too many calls", http.StatusInternalServerError)
			return
		}
		responses[n](w, r)
	}))
}

func chatOK(content string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "qwen-vl-ocr",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}
}

func chatFail(w http.ResponseWriter, r *http.Request) {
	http.Error(w, `{"error":{"message":"upstream busy"}}`, http.StatusInternalServerError)
}

func TestRunParsesJSONContent(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, []func(http.ResponseWriter, *http.Request){
		chatOK(`{"raw_text":"Invoice #42","extracted_fields":{}}`),
	})
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL})
	pages := c.Run(context.Background(), []string{"data:image/png;base64,AA=="}, "read", nil, nil)

	if len(pages) != 1 || pages[0].Page != 1 || pages[0].Error != "" {
		t.Fatalf("pages = %#v", pages)
	}
	m, ok := pages[0].Content.(map[string]any)
	if !ok || m["raw_text"] != "Invoice #42" {
		t.Fatalf("content = %#v", pages[0].Content)
	}
}

func TestRunWrapsNonJSONContent(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, []func(http.ResponseWriter, *http.Request){
		chatOK("I could not find structured data."),
	})
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL})
	pages := c.Run(context.Background(), []string{"img"}, "read", nil, nil)

	m, ok := pages[0].Content.(map[string]any)
	if !ok || m["raw"] != "I could not find structured data." {
		t.Fatalf("content = %#v", pages[0].Content)
	}
}

func TestRunCapturesPerPageFailure(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, []func(http.ResponseWriter, *http.Request){
		chatOK(`{"raw_text":"page one"}`),
		chatFail,
		chatOK(`{"raw_text":"page three"}`),
	})
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL})
	pages := c.Run(context.Background(), []string{"a", "b", "c"}, "read", nil, nil)

	if len(pages) != 3 {
		t.Fatalf("pages = %d", len(pages))
	}
	if pages[0].Error != "" || pages[2].Error != "" {
		t.Fatalf("healthy pages carry errors: %#v", pages)
	}
	if pages[1].Error == "" || pages[1].Content != nil {
		t.Fatalf("failed page = %#v", pages[1])
	}
	if pages[1].Page != 2 {
		t.Fatalf("failed page keeps its number, got %d", pages[1].Page)
	}
}

func TestRunSendsOverrideKeyAndModel(t *testing.T) {
	t.Parallel()

	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		chatOK(`{}`)(w, r)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "stored-key", Model: "stored-model", BaseURL: srv.URL})
	key := " override-key "
	model := "override-model"
	c.Run(context.Background(), []string{"img"}, "read", &key, &model)

	if gotAuth != "Bearer override-key" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotModel != "override-model" {
		t.Fatalf("model = %q", gotModel)
	}
}

func TestRunDefaultsModelWhenOverrideBlank(t *testing.T) {
	t.Parallel()

	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		chatOK(`{}`)(w, r)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL})
	blank := "  "
	c.Run(context.Background(), []string{"img"}, "read", nil, &blank)

	if gotModel != DefaultModel {
		t.Fatalf("model = %q, want %q", gotModel, DefaultModel)
	}
}
