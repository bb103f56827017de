package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"ipcollector/internal/domain"
)

// RecordsUpdateFunc returns the new record list and whether it should be written.
type RecordsUpdateFunc func(current []domain.IPRecord) ([]domain.IPRecord, bool, error)

func DecodeRecords(raw []byte) ([]domain.IPRecord, error) {
	records := []domain.IPRecord{}
	if isEmptyValue(raw) {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", KeyCollectedIPs, err)
	}
	if records == nil {
		records = []domain.IPRecord{}
	}
	return records, nil
}

func EncodeRecords(records []domain.IPRecord) ([]byte, error) {
	if records == nil {
		records = []domain.IPRecord{}
	}
	return json.Marshal(records)
}

func DecodePatterns(raw []byte) ([]string, error) {
	patterns := []string{}
	if isEmptyValue(raw) {
		return patterns, nil
	}
	if err := json.Unmarshal(raw, &patterns); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", KeyRegexPatterns, err)
	}
	if patterns == nil {
		patterns = []string{}
	}
	return patterns, nil
}

func EncodePatterns(patterns []string) ([]byte, error) {
	if patterns == nil {
		patterns = []string{}
	}
	return json.Marshal(patterns)
}

func isEmptyValue(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// LoadRecords returns the persisted collection; a missing key is an empty one.
func (s *Store) LoadRecords(ctx context.Context) ([]domain.IPRecord, error) {
	records, _, err := s.LoadRecordsRevision(ctx)
	return records, err
}

// LoadRecordsRevision returns the persisted collection and its revision.
func (s *Store) LoadRecordsRevision(ctx context.Context) ([]domain.IPRecord, int64, error) {
	raw, revision, _, err := s.GetRevision(ctx, KeyCollectedIPs)
	if err != nil {
		return nil, 0, err
	}
	records, err := DecodeRecords(raw)
	if err != nil {
		return nil, 0, err
	}
	return records, revision, nil
}

func (s *Store) SaveRecords(ctx context.Context, records []domain.IPRecord) error {
	payload, err := EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", KeyCollectedIPs, err)
	}
	return s.Set(ctx, KeyCollectedIPs, payload)
}

// UpdateRecords applies fn atomically to the persisted collection and returns
// the collection as stored afterwards with its revision.
func (s *Store) UpdateRecords(ctx context.Context, fn RecordsUpdateFunc) ([]domain.IPRecord, int64, error) {
	var stored []domain.IPRecord
	_, revision, err := s.Update(ctx, KeyCollectedIPs, func(current []byte, _ bool) ([]byte, error) {
		records, err := DecodeRecords(current)
		if err != nil {
			return nil, err
		}

		next, write, err := fn(records)
		if err != nil {
			return nil, err
		}
		if !write {
			stored = records
			return nil, nil
		}

		payload, err := EncodeRecords(next)
		if err != nil {
			return nil, err
		}
		stored = next
		return payload, nil
	})
	if err != nil {
		return nil, 0, err
	}
	if stored == nil {
		stored = []domain.IPRecord{}
	}
	return stored, revision, nil
}

func (s *Store) LoadPatterns(ctx context.Context) ([]string, error) {
	raw, _, err := s.Get(ctx, KeyRegexPatterns)
	if err != nil {
		return nil, err
	}
	return DecodePatterns(raw)
}

func (s *Store) SavePatterns(ctx context.Context, patterns []string) error {
	payload, err := EncodePatterns(patterns)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", KeyRegexPatterns, err)
	}
	return s.Set(ctx, KeyRegexPatterns, payload)
}
