package engine

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/memorykeep/docsync/pkg/errors"
)

// SchemaVersion is written into every envelope. Blobs without one are version 1.
const SchemaVersion = 1

// Metadata is the envelope part of a stored document. Payload fields sit
// beside it at the top level of the same JSON object.
type Metadata struct {
	LastUpdated   string `json:"lastUpdated"`
	OwnerID       string `json:"ownerId"`
	PartitionID   string `json:"partitionId"`
	Timestamp     int64  `json:"timestamp"`
	SchemaVersion int    `json:"schemaVersion,omitempty"`
}

// EncodeEnvelope flattens payload and id into one JSON object stamped with now.
func EncodeEnvelope(payload any, id Identity, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedDocument, "encoding payload").
			WithComponent("codec")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errors.NewError(errors.ErrCodeMalformedDocument, "payload must encode as a JSON object").
			WithComponent("codec")
	}

	meta := map[string]any{
		"lastUpdated":   now.UTC().Format("2006-01-02T15:04:05.000Z"),
		"ownerId":       id.OwnerID,
		"partitionId":   id.PartitionID,
		"timestamp":     now.UnixMilli(),
		"schemaVersion": SchemaVersion,
	}
	for k, v := range meta {
		encoded, _ := json.Marshal(v)
		fields[k] = encoded
	}

	return json.Marshal(fields)
}

// DecodeEnvelope parses a stored document. Any blob that is not a JSON object
// with well-typed metadata is reported as ErrCodeMalformedDocument.
func DecodeEnvelope[T any](data []byte) (Metadata, T, error) {
	var (
		meta    Metadata
		payload T
	)

	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(data) == 0 || data[0] != '{' {
		return meta, payload, errors.NewError(errors.ErrCodeMalformedDocument, "document is not a JSON object").
			WithComponent("codec")
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, payload, errors.Wrap(err, errors.ErrCodeMalformedDocument, "decoding envelope").
			WithComponent("codec")
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return meta, payload, errors.Wrap(err, errors.ErrCodeMalformedDocument, "decoding payload").
			WithComponent("codec")
	}

	if meta.SchemaVersion == 0 {
		meta.SchemaVersion = 1
	}
	if meta.SchemaVersion > SchemaVersion {
		return meta, payload, errors.NewError(errors.ErrCodeUnsupported, "document schema is newer than this engine").
			WithComponent("codec")
	}
	return meta, payload, nil
}

// belongsTo reports whether meta was written for id. Legacy blobs without
// identity fields are accepted.
func (m Metadata) belongsTo(id Identity) bool {
	n := id.Normalize()
	if m.OwnerID != "" && Sanitize(m.OwnerID) != n.OwnerID {
		return false
	}
	if m.PartitionID != "" && Sanitize(m.PartitionID) != n.PartitionID {
		return false
	}
	return true
}

// CacheEntry is the last-known-good snapshot of one identity, stored as JSON
// in the host cache.
type CacheEntry struct {
	OwnerID     string          `json:"ownerId"`
	PartitionID string          `json:"partitionId"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	ObjectKey   string          `json:"objectKey,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func encodeEntry(kind string, id Identity, payload any, objectKey string, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheWrite, "encoding cache entry")
	}
	return json.Marshal(CacheEntry{
		OwnerID:     id.OwnerID,
		PartitionID: id.PartitionID,
		Kind:        kind,
		Payload:     raw,
		ObjectKey:   objectKey,
		Timestamp:   now,
	})
}

func decodeEntry[T any](data []byte) (CacheEntry, T, error) {
	var (
		entry   CacheEntry
		payload T
	)
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, payload, errors.Wrap(err, errors.ErrCodeCacheRead, "decoding cache entry")
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return entry, payload, errors.Wrap(err, errors.ErrCodeCacheRead, "decoding cached payload")
	}
	return entry, payload, nil
}
