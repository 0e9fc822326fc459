package engine

import (
	"encoding/json"

	"github.com/memorykeep/docsync/pkg/errors"
)

// Source names the tier that served a result.
type Source string

const (
	SourceCloud         Source = "cloud"
	SourceLocalCache    Source = "local-cache"
	SourceLocalFallback Source = "local-fallback"
	SourceDefault       Source = "default"
)

// FallbackLocal marks a write that only reached the local fallback store.
const FallbackLocal = "local"

// Result is what every public engine call resolves to. Failures are folded
// into Success and Message; nothing is returned as an error.
type Result[T any] struct {
	Success  bool   `json:"success"`
	Data     T      `json:"data"`
	Source   Source `json:"source"`
	Fallback string `json:"fallback,omitempty"`
	// Code classifies a rejection or the failure that forced a fallback tier.
	Code      errors.ErrorCode `json:"code,omitempty"`
	Message   string           `json:"message"`
	ObjectKey string           `json:"objectKey,omitempty"`
	Changed   bool             `json:"changed"`
}

// ToJSON re-types r with its payload encoded as raw JSON.
func ToJSON[T any](r Result[T]) Result[json.RawMessage] {
	raw, err := json.Marshal(r.Data)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Result[json.RawMessage]{
		Success:   r.Success,
		Data:      raw,
		Source:    r.Source,
		Fallback:  r.Fallback,
		Code:      r.Code,
		Message:   r.Message,
		ObjectKey: r.ObjectKey,
		Changed:   r.Changed,
	}
}
