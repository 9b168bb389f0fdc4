package unifiedllm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestClientRoutesToDefaultProvider(t *testing.T) {
	adapter := &mockAdapter{name: "openai", responses: []*Response{textResponse("hello")}}
	client := NewClient(WithProvider("openai", adapter))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "hello" {
		t.Errorf("unexpected text %q", resp.Text())
	}
	if adapter.requests[0].Provider != "openai" {
		t.Errorf("provider not filled in: %q", adapter.requests[0].Provider)
	}
}

func TestClientRoutesByCatalogModel(t *testing.T) {
	openai := &mockAdapter{name: "openai"}
	anthropic := &mockAdapter{name: "anthropic"}
	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	if _, err := client.Complete(context.Background(), Request{Model: "sonnet"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(anthropic.requests) != 1 || len(openai.requests) != 0 {
		t.Errorf("expected anthropic to serve the request")
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	client.RegisterProvider("openai", &mockAdapter{name: "openai"})
	_, err = client.Complete(context.Background(), Request{Provider: "gemini"})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, name+">")
			resp, err := next(ctx, req)
			order = append(order, "<"+name)
			return resp, err
		}
	}
	client := NewClient(
		WithProvider("openai", &mockAdapter{name: "openai"}),
		WithMiddleware(mark("a"), mark("b")),
	)
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(order, " "); got != "a> b> <b <a" {
		t.Errorf("unexpected order %q", got)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient(
		WithProvider("openai", &mockAdapter{name: "openai"}),
		WithMiddleware(LoggingMiddleware(logger)),
	)
	_, err := client.Complete(context.Background(), Request{
		Model:    "gpt-4.1",
		Metadata: map[string]string{MetadataThreadID: "thread-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "llm request completed") || !strings.Contains(out, "thread-1") {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestRateLimitMiddlewareCancelled(t *testing.T) {
	limiter := PerMinuteLimiter(1)
	client := NewClient(
		WithProvider("openai", &mockAdapter{name: "openai"}),
		WithMiddleware(RateLimitMiddleware(limiter)),
	)
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, Request{})
	var abort *AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("expected AbortError, got %v", err)
	}
}

type closingAdapter struct {
	mockAdapter
	closed bool
}

func (c *closingAdapter) Close() error {
	c.closed = true
	return nil
}

func TestClientClose(t *testing.T) {
	adapter := &closingAdapter{mockAdapter: mockAdapter{name: "openai"}}
	client := NewClient(WithProvider("openai", adapter))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed")
	}
}
