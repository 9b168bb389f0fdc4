package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		check     func(error) bool
	}{
		{400, false, func(e error) bool { var x *InvalidRequestError; return errors.As(e, &x) }},
		{401, false, func(e error) bool { var x *AuthenticationError; return errors.As(e, &x) }},
		{403, false, func(e error) bool { var x *AccessDeniedError; return errors.As(e, &x) }},
		{404, false, func(e error) bool { var x *NotFoundError; return errors.As(e, &x) }},
		{408, true, func(e error) bool { var x *RequestTimeoutError; return errors.As(e, &x) }},
		{413, false, func(e error) bool { var x *ContextLengthError; return errors.As(e, &x) }},
		{429, true, func(e error) bool { var x *RateLimitError; return errors.As(e, &x) }},
		{503, true, func(e error) bool { var x *ServerError; return errors.As(e, &x) }},
		{418, true, func(e error) bool { var x *ProviderError; return errors.As(e, &x) }},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ErrorFromStatusCode(tt.status, "boom", "openai", "", nil)
			if !tt.check(err) {
				t.Errorf("status %d mapped to %T", tt.status, err)
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
	if IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
		t.Error("deadline exceeded should not be retryable")
	}
	if IsRetryable(&ConfigurationError{SDKError: SDKError{Message: "x"}}) {
		t.Error("configuration errors should not be retryable")
	}
	if IsRetryable(&NoObjectGeneratedError{SDKError: SDKError{Message: "x"}}) {
		t.Error("schema errors should not be retryable")
	}
	if !IsRetryable(&NetworkError{SDKError: SDKError{Message: "reset"}}) {
		t.Error("network errors should be retryable")
	}
	if !IsRetryable(errors.New("mystery")) {
		t.Error("unknown errors default to retryable")
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := &NetworkError{SDKError: SDKError{Message: "dial", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "dial: root" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
