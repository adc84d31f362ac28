package documents

import (
	"context"
	"encoding/json"
	"fmt"
)

// Service canonicalizes payloads on the way in and hands back plain maps on
// the way out. Absence of a document is an empty object, never an error.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// Save replaces the subject's document with the given payload.
func (s *Service) Save(ctx context.Context, sub string, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize payload: %w", err)
	}
	if err := s.repo.Upsert(ctx, sub, b); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Get returns the subject's stored payload, or an empty object when none
// exists.
func (s *Service) Get(ctx context.Context, sub string) (map[string]interface{}, error) {
	d, err := s.repo.GetBySub(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if d == nil {
		return map[string]interface{}{}, nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(d.Payload), &payload); err != nil {
		return nil, fmt.Errorf("decode stored payload: %w", err)
	}
	return payload, nil
}
