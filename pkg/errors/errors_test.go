package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		if !NewError(ErrCodeNetworkError, "net").Retryable {
			t.Error("NetworkError should be retryable by default")
		}
		if NewError(ErrCodeMalformedDocument, "bad").Retryable {
			t.Error("MalformedDocument should not be retryable by default")
		}
		if NewError(ErrCodeRequestTooLarge, "too large").Retryable {
			t.Error("RequestTooLarge is handled by a reduced-size retry, not backoff")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeNetworkError, CategoryTransport},
		{ErrCodeCircuitOpen, CategoryTransport},
		{ErrCodeRequestTooLarge, CategoryStorage},
		{ErrCodeStorageDelete, CategoryStorage},
		{ErrCodeMalformedDocument, CategoryDocument},
		{ErrCodeForeignDocument, CategoryDocument},
		{ErrCodeCacheWrite, CategoryLocal},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestSyncError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *SyncError
		want string
	}{
		{
			name: "code and message only",
			err:  NewError(ErrCodeStorageRead, "list failed"),
			want: "STORAGE_READ: list failed",
		},
		{
			name: "with component",
			err:  NewError(ErrCodeStorageRead, "list failed").WithComponent("discovery"),
			want: "[discovery] STORAGE_READ: list failed",
		},
		{
			name: "with component and operation",
			err:  NewError(ErrCodeStorageRead, "list failed").WithComponent("discovery").WithOperation("list"),
			want: "[discovery:list] STORAGE_READ: list failed",
		},
		{
			name: "with cause",
			err:  Wrap(fmt.Errorf("connection reset"), ErrCodeNetworkError, "fetch failed"),
			want: "NETWORK_ERROR: fetch failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	err := Wrap(cause, ErrCodeRequestTooLarge, "listing too large")
	wrapped := fmt.Errorf("discovery: %w", err)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should find the root cause")
	}
	if !IsCode(wrapped, ErrCodeRequestTooLarge) {
		t.Error("IsCode should match through fmt wrapping")
	}
	if IsCode(wrapped, ErrCodeStorageRead) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(nil, ErrCodeStorageRead) {
		t.Error("IsCode(nil) should be false")
	}
	if got := CodeOf(wrapped); got != ErrCodeRequestTooLarge {
		t.Errorf("CodeOf = %v, want %v", got, ErrCodeRequestTooLarge)
	}
	if got := CodeOf(cause); got != "" {
		t.Errorf("CodeOf(plain) = %v, want empty", got)
	}
}

func TestSyncError_Builders(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeStorageWrite, "upload failed").
		WithComponent("engine").
		WithOperation("write").
		WithContext("key", "root/abc/global/theme_abc_global_latest.txt").
		WithRetryable(true)

	if err.Context["key"] != "root/abc/global/theme_abc_global_latest.txt" {
		t.Errorf("context key not set: %v", err.Context)
	}
	if !IsRetryable(err) {
		t.Error("WithRetryable(true) should override the default")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are never retryable")
	}

	s := err.String()
	for _, want := range []string{"Code=STORAGE_WRITE", "Component=engine", "Operation=write", "Retryable=true", "Context="} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestSyncError_JSON(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeMalformedDocument, "bad envelope").WithCause(errors.New("unexpected EOF"))
	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("marshal failed: %v", marshalErr)
	}

	var decoded map[string]any
	if unmarshalErr := json.Unmarshal(data, &decoded); unmarshalErr != nil {
		t.Fatalf("unmarshal failed: %v", unmarshalErr)
	}
	if decoded["code"] != "MALFORMED_DOCUMENT" {
		t.Errorf("code = %v", decoded["code"])
	}
	if _, ok := decoded["Cause"]; ok {
		t.Error("cause must not be serialized")
	}
}
