package parse

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Engine ties the inbound call contract to the dispatch pipeline and the
// two-channel output protocol.
type Engine struct {
	dispatcher      *Dispatcher
	fileHostBase    string
	maxFileBytes    int64
	downloadTimeout time.Duration
	getenv          func(string) string
}

func NewEngine(dispatcher *Dispatcher, fileHostBase string, maxFileBytes int64, downloadTimeout time.Duration) *Engine {
	return &Engine{
		dispatcher:      dispatcher,
		fileHostBase:    fileHostBase,
		maxFileBytes:    maxFileBytes,
		downloadTimeout: downloadTimeout,
		getenv:          os.Getenv,
	}
}

// WithEnv replaces the environment snapshot used for base-URL discovery.
func (e *Engine) WithEnv(getenv func(string) string) *Engine {
	e.getenv = getenv
	return e
}

// Handle processes one request end to end and returns the outbound
// messages. Every code path yields either exactly one message (validation
// or error outcome) or exactly two (text + structured success).
func (e *Engine) Handle(ctx context.Context, req Request) (msgs []Message) {
	defer func() {
		if r := recover(); r != nil {
			msgs = []Message{JSONMessage(&ErrorResult{Kind: ErrProcessingFailed, Detail: fmt.Sprint(r)})}
		}
	}()

	prompt := strings.TrimSpace(req.Prompt)
	fileURL := ExtractFileURL(req.FileURL)

	base := AutoBaseURL(e.getenv)
	if base == "" {
		base = e.fileHostBase
	}
	fileURL = AbsolutizeURL(fileURL, base)

	if prompt == "" {
		return []Message{TextMessage("Missing required parameter: prompt")}
	}
	if fileURL == "" {
		return []Message{TextMessage("Missing required parameter: file_url")}
	}
	if !IsHTTPURL(fileURL) {
		return []Message{JSONMessage(&ErrorResult{
			Kind:   ErrInvalidFileURL,
			Detail: "`file_url` must start with http:// or https://",
			Value:  fileURL,
		})}
	}

	data, _, err := Download(ctx, fileURL, e.maxFileBytes, e.downloadTimeout)
	if err != nil || len(data) == 0 {
		return []Message{JSONMessage(&ErrorResult{
			Kind:   ErrDownloadFailed,
			Detail: "Could not download or read the file",
		})}
	}

	format := Detect(fileURL, data)
	result := e.dispatcher.Dispatch(ctx, data, format, prompt, req)
	if result.Err != nil {
		return []Message{JSONMessage(result.Err)}
	}

	payload := result.Payload()
	return []Message{TextMessage(RenderText(payload)), JSONMessage(payload)}
}
