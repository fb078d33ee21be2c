package service

import (
	"bytes"
	"context"
	"encoding/json"

	"questlog/internal/server/storage"
)

// RecordProgress stores the latest progress for (email, questID) and
// returns the row id, which stays the same across repeated reports.
func (s *Service) RecordProgress(ctx context.Context, email, questID string, progress float64, data json.RawMessage) (int64, error) {
	doc, err := NormalizeData(data)
	if err != nil {
		return 0, err
	}

	qctx, cancel := s.query(ctx)
	defer cancel()

	return s.progress.Upsert(qctx, email, questID, progress, doc)
}

// NormalizeData turns the raw "data" field of a progress report into the
// JSON document to store:
//
//	absent or null   -> null
//	"<json text>"    -> the decoded document (browsers send JSON.stringify output)
//	object, array... -> itself, compacted
func NormalizeData(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, storage.NullData()) {
		return storage.NullData(), nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, ErrInvalidData
		}
		raw = []byte(text)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, ErrInvalidData
	}
	return json.RawMessage(buf.Bytes()), nil
}
