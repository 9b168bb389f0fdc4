package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/patchloop/unifiedllm"
	"github.com/martinemde/patchloop/workflow"
)

func TestObserverRecordsLoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.StepStarted(workflow.StepApply, 1)
	m.StepFinished(workflow.StepApply, 1, 2*time.Second, nil)
	m.StepFinished(workflow.StepDiagnose, 2, time.Second, errors.New("format"))
	m.IterationFinished(workflow.IterationReport{Iteration: 1, PatchNumber: 1, Edits: 2})
	m.IterationFinished(workflow.IterationReport{Iteration: 2, PatchNumber: 2, Stalled: true})
	m.RunFinished(workflow.Outcome{State: workflow.StateExhausted, Reason: workflow.ExitReasonNoProgress, PatchNumber: 3}, nil)
	m.RunFinished(workflow.Outcome{State: workflow.StateIterating, PatchNumber: 3}, errors.New("aborted"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.iterations))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.edits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stalls))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.patchNumber))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepErrors.WithLabelValues("diagnose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("exhausted", "no progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("iterating", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stepDuration))
}

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	mw := m.Middleware()

	ok := func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
		return &unifiedllm.Response{Provider: "openai"}, nil
	}
	fail := func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
		return nil, errors.New("down")
	}

	_, err := mw(context.Background(), unifiedllm.Request{}, ok)
	require.NoError(t, err)
	_, err = mw(context.Background(), unifiedllm.Request{Provider: "anthropic"}, fail)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("openai", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("anthropic", "error")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IterationFinished(workflow.IterationReport{PatchNumber: 4})

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "patchloop_loop_patch_number 4")
	assert.Contains(t, string(body), "patchloop_loop_iterations_total 1")
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry(), slog.New(slog.DiscardHandler)) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
