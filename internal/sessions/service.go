package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Meta is the client detail snapshot recorded alongside a session so users
// can recognize it in their session list.
type Meta struct {
	DeviceInfo string
	IPAddress  string
}

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// CreateSession stores a new refresh session and returns the refresh token
func (s *Service) CreateSession(ctx context.Context, userID, tenantID, accessJTI string, ttl time.Duration, meta Meta) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	refresh := hex.EncodeToString(b)
	sess := &Session{
		ID:           uuid.NewString(),
		RefreshToken: refresh,
		UserID:       userID,
		TenantID:     tenantID,
		AccessJTI:    accessJTI,
		DeviceInfo:   meta.DeviceInfo,
		IPAddress:    meta.IPAddress,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return refresh, nil
}

// ValidateRefresh returns the session if refresh token is valid and not expired
func (s *Service) ValidateRefresh(ctx context.Context, refresh string) (*Session, error) {
	sess, err := s.repo.GetByRefresh(ctx, refresh)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		// cleanup expired session
		_ = s.repo.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return sess, nil
}

// Rotate invalidates the presented refresh token and issues a replacement
// bound to the new access token, carrying the device details forward.
// Returns nil session when the token is unknown or expired.
func (s *Service) Rotate(ctx context.Context, refresh, newAccessJTI string, ttl time.Duration) (*Session, string, error) {
	sess, err := s.ValidateRefresh(ctx, refresh)
	if err != nil || sess == nil {
		return nil, "", err
	}
	if err := s.repo.DeleteByRefresh(ctx, refresh); err != nil {
		return nil, "", err
	}
	meta := Meta{DeviceInfo: sess.DeviceInfo, IPAddress: sess.IPAddress}
	next, err := s.CreateSession(ctx, sess.UserID, sess.TenantID, newAccessJTI, ttl, meta)
	if err != nil {
		return nil, "", err
	}
	return sess, next, nil
}

func (s *Service) DeleteRefresh(ctx context.Context, refresh string) error {
	return s.repo.DeleteByRefresh(ctx, refresh)
}

// ListSessions returns the user's live sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := list[:0]
	for _, sess := range list {
		if now.After(sess.ExpiresAt) {
			_ = s.repo.DeleteByRefresh(ctx, sess.RefreshToken)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// RevokeSession removes one of the user's sessions by id, reporting whether
// it existed.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.repo.DeleteByID(ctx, userID, sessionID)
}

// RevokeAllSessions removes every session of the user except the one bound
// to exceptJTI and returns the number revoked.
func (s *Service) RevokeAllSessions(ctx context.Context, userID, exceptJTI string) (int, error) {
	return s.repo.DeleteByUser(ctx, userID, exceptJTI)
}
