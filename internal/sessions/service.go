package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service wraps repository operations with the session lifecycle rules:
// ids are unguessable, expired sessions are indistinguishable from absent
// ones, destroying twice is fine.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// Create stores a new session for the subject and returns the opaque id to
// be set as the session cookie.
func (s *Service) Create(ctx context.Context, sub string, profile map[string]interface{}, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)
	now := time.Now().UTC()
	sess := &Session{
		ID:        id,
		Sub:       sub,
		Profile:   profile,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return id, nil
}

// Resolve returns the session if present and unexpired. Missing and expired
// entries both come back as nil so callers cannot tell them apart.
func (s *Service) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(time.Now().UTC()) {
		// cleanup expired session
		_ = s.repo.DeleteByID(ctx, id)
		return nil, nil
	}
	return sess, nil
}

// Destroy removes the session. Destroying an absent id is not an error.
func (s *Service) Destroy(ctx context.Context, id string) error {
	return s.repo.DeleteByID(ctx, id)
}
