package llmboundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RealBoundary talks to an OpenAI-compatible chat-completions endpoint via
// github.com/sashabaranov/go-openai. It is constructed only when an API key
// is configured; otherwise callers should use Fake.
type RealBoundary struct {
	client *openai.Client
	model  string
}

// NewRealBoundary builds a RealBoundary against baseURL/model using apiKey,
// with an HTTP timeout generous enough for slow completions; per-call
// timeouts are enforced by the caller via context.
func NewRealBoundary(apiKey, baseURL, model string) *RealBoundary {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &RealBoundary{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Narrative implements Boundary.Narrative: streams the completion,
// accumulating non-empty content fragments and invoking onDelta for each.
// Retries up to 3 times only before the first byte arrives; any error
// after streaming has begun is fatal, per spec.md §4.5.
func (b *RealBoundary) Narrative(ctx context.Context, system, user string, onDelta DeltaFunc, abort AbortCheck) (NarrativeResult, error) {
	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Stream: true,
	}

	const maxPreByteAttempts = 3
	var lastErr error

	for attempt := 0; attempt < maxPreByteAttempts; attempt++ {
		result, startedStreaming, err := b.streamOnce(ctx, req, onDelta, abort)
		if err == nil {
			return result, nil
		}
		if startedStreaming {
			slog.Error("narrative stream failed mid-stream", "model", b.model, "error", err)
			return NarrativeResult{}, &ErrUnavailable{Op: "narrative", Err: err}
		}
		lastErr = err
		if _, aborted := err.(ErrAborted); aborted {
			return NarrativeResult{}, err
		}
		slog.Warn("narrative stream attempt failed before first byte", "model", b.model, "attempt", attempt+1, "error", err)
		if attempt < maxPreByteAttempts-1 {
			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
		}
	}

	slog.Error("narrative call exhausted retry budget", "model", b.model, "attempts", maxPreByteAttempts)
	return NarrativeResult{}, &ErrUnavailable{Op: "narrative", Err: lastErr}
}

func (b *RealBoundary) streamOnce(ctx context.Context, req openai.ChatCompletionRequest, onDelta DeltaFunc, abort AbortCheck) (NarrativeResult, bool, error) {
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return NarrativeResult{}, false, err
	}
	defer stream.Close()

	var sb strings.Builder
	startedStreaming := false

	for {
		if abort != nil && abort() {
			return NarrativeResult{}, startedStreaming, ErrAborted{}
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return NarrativeResult{}, startedStreaming, err
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		startedStreaming = true
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	return NarrativeResult{Text: sb.String()}, startedStreaming, nil
}

// CallStructured implements Boundary.CallStructured: one non-stream
// request per attempt, JSON-decoded and validated against the named
// schema. maxAttempts is owned by the caller (1 for free-input selection,
// up to 3 for ending bundles), per spec.md §4.5.
func (b *RealBoundary) CallStructured(ctx context.Context, schemaName, system, user string, maxAttempts int) (StructuredResult, error) {
	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	var lastErr error
	backoffs := []time.Duration{200 * time.Millisecond, 500 * time.Millisecond}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := b.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
		} else if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices returned")
		} else {
			obj, err := DecodeObject(resp.Choices[0].Message.Content)
			if err != nil {
				lastErr = err
			} else if err := Validate(schemaName, obj); err != nil {
				lastErr = err
			} else {
				return StructuredResult{Object: obj}, nil
			}
		}

		if lastErr != nil {
			slog.Warn("structured call attempt failed", "schema", schemaName, "model", b.model, "attempt", attempt+1, "error", lastErr)
		}

		if attempt < maxAttempts-1 && attempt < len(backoffs) {
			select {
			case <-time.After(backoffs[attempt]):
			case <-ctx.Done():
				return StructuredResult{}, &ErrUnavailable{Op: schemaName, Err: ctx.Err()}
			}
		}
	}

	slog.Error("structured call exhausted retry budget", "schema", schemaName, "model", b.model, "attempts", maxAttempts)
	return StructuredResult{}, &ErrUnavailable{Op: schemaName, Err: lastErr}
}
