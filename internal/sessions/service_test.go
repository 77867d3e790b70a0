package sessions

import (
	"context"
	"sort"
	"testing"
	"time"
)

// fake repo for testing
type fakeRepo struct {
	store map[string]*Session
}

func (f *fakeRepo) Create(ctx context.Context, s *Session) error {
	if f.store == nil {
		f.store = map[string]*Session{}
	}
	f.store[s.RefreshToken] = s
	return nil
}
func (f *fakeRepo) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	if f.store == nil {
		return nil, nil
	}
	s, ok := f.store[refresh]
	if !ok {
		return nil, nil
	}
	return s, nil
}
func (f *fakeRepo) DeleteByRefresh(ctx context.Context, refresh string) error {
	if f.store == nil {
		return nil
	}
	delete(f.store, refresh)
	return nil
}
func (f *fakeRepo) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	var out []*Session
	for _, s := range f.store {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
func (f *fakeRepo) DeleteByID(ctx context.Context, userID, sessionID string) (bool, error) {
	for refresh, s := range f.store {
		if s.UserID == userID && s.ID == sessionID {
			delete(f.store, refresh)
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeRepo) DeleteByUser(ctx context.Context, userID, exceptJTI string) (int, error) {
	count := 0
	for refresh, s := range f.store {
		if s.UserID != userID {
			continue
		}
		if exceptJTI != "" && s.AccessJTI == exceptJTI {
			continue
		}
		delete(f.store, refresh)
		count++
	}
	return count, nil
}

func TestCreateAndValidateSession(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-1", time.Hour, Meta{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if r == "" {
		t.Fatalf("expected refresh token")
	}
	// validate
	sess, err := svc.ValidateRefresh(ctx, r)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if sess == nil || sess.UserID != "user-1" || sess.TenantID != "tenant-1" {
		t.Fatalf("unexpected session: %v", sess)
	}
	if sess.ID == "" {
		t.Fatalf("expected a session id")
	}
	// delete
	if err := svc.DeleteRefresh(ctx, r); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	sess2, _ := svc.ValidateRefresh(ctx, r)
	if sess2 != nil {
		t.Fatalf("expected session removed")
	}
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	r1, err := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-1", time.Hour, Meta{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	sess, r2, err := svc.Rotate(ctx, r1, "jti-2", time.Hour)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if sess == nil || sess.UserID != "user-1" {
		t.Fatalf("rotate returned wrong session: %v", sess)
	}
	if r2 == "" || r2 == r1 {
		t.Fatalf("expected a fresh refresh token")
	}
	// old token no longer valid
	if old, _ := svc.ValidateRefresh(ctx, r1); old != nil {
		t.Fatalf("expected old refresh token invalidated")
	}
	// new token valid and carries the new jti
	next, err := svc.ValidateRefresh(ctx, r2)
	if err != nil || next == nil {
		t.Fatalf("new refresh token should validate: %v %v", next, err)
	}
	if next.AccessJTI != "jti-2" {
		t.Fatalf("expected jti-2, got %q", next.AccessJTI)
	}
}

func TestRotateCarriesDeviceMeta(t *testing.T) {
	svc := NewService(&fakeRepo{})
	ctx := context.Background()
	meta := Meta{DeviceInfo: "Mozilla/5.0", IPAddress: "10.0.0.5"}
	r1, err := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-1", time.Hour, meta)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, r2, err := svc.Rotate(ctx, r1, "jti-2", time.Hour)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	next, _ := svc.ValidateRefresh(ctx, r2)
	if next == nil || next.DeviceInfo != "Mozilla/5.0" || next.IPAddress != "10.0.0.5" {
		t.Fatalf("expected device meta carried across rotation, got %+v", next)
	}
}

func TestRotateUnknownToken(t *testing.T) {
	svc := NewService(&fakeRepo{})
	sess, next, err := svc.Rotate(context.Background(), "no-such-token", "jti", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess != nil || next != "" {
		t.Fatalf("expected nil session for unknown token")
	}
}

func TestListSessionsOnlyOwn(t *testing.T) {
	svc := NewService(&fakeRepo{})
	ctx := context.Background()
	if _, err := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-1", time.Hour, Meta{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-2", time.Hour, Meta{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.CreateSession(ctx, "user-2", "tenant-1", "jti-3", time.Hour, Meta{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	list, err := svc.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	for _, s := range list {
		if s.UserID != "user-1" {
			t.Fatalf("listed a foreign session: %+v", s)
		}
	}
}

func TestRevokeSessionByID(t *testing.T) {
	svc := NewService(&fakeRepo{})
	ctx := context.Background()
	r1, _ := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-1", time.Hour, Meta{})
	sess, _ := svc.ValidateRefresh(ctx, r1)

	// a different user cannot revoke it
	ok, err := svc.RevokeSession(ctx, "user-2", sess.ID)
	if err != nil || ok {
		t.Fatalf("expected foreign revoke to miss, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.RevokeSession(ctx, "user-1", sess.ID)
	if err != nil || !ok {
		t.Fatalf("expected revoke to succeed, got ok=%v err=%v", ok, err)
	}
	if still, _ := svc.ValidateRefresh(ctx, r1); still != nil {
		t.Fatalf("expected refresh token dead after revoke")
	}
}

func TestRevokeAllKeepsCurrentSession(t *testing.T) {
	svc := NewService(&fakeRepo{})
	ctx := context.Background()
	current, _ := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-current", time.Hour, Meta{})
	other1, _ := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-a", time.Hour, Meta{})
	other2, _ := svc.CreateSession(ctx, "user-1", "tenant-1", "jti-b", time.Hour, Meta{})

	count, err := svc.RevokeAllSessions(ctx, "user-1", "jti-current")
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}
	if s, _ := svc.ValidateRefresh(ctx, current); s == nil {
		t.Fatalf("current session should survive")
	}
	if s, _ := svc.ValidateRefresh(ctx, other1); s != nil {
		t.Fatalf("other session 1 should be gone")
	}
	if s, _ := svc.ValidateRefresh(ctx, other2); s != nil {
		t.Fatalf("other session 2 should be gone")
	}
}
