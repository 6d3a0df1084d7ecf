package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"accounts/internal/domain"
)

func TestUserRepository(t *testing.T) {
	db := New()
	ctx := context.Background()

	u, err := db.Create(ctx, "alice", "alice@x.com", "hash", domain.RoleGuest)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}

	if _, err := db.Create(ctx, "other", "alice@x.com", "hash", domain.RoleGuest); !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	got, err := db.GetByEmail(ctx, "alice@x.com")
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}
	if missing, _ := db.GetByEmail(ctx, "bob@x.com"); missing != nil {
		t.Error("expected nil for unknown email")
	}

	email := "alice2@x.com"
	updated, err := db.Update(ctx, u.ID, domain.UserUpdate{Email: &email})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Email != email || updated.PasswordHash != "hash" {
		t.Errorf("unexpected update result: %+v", updated)
	}
	if none, _ := db.Update(ctx, 999, domain.UserUpdate{Email: &email}); none != nil {
		t.Error("expected nil for unknown user")
	}

	// Returned values are copies.
	updated.Email = "mutated@x.com"
	if again, _ := db.GetByID(ctx, u.ID); again.Email != email {
		t.Errorf("store was mutated through returned pointer: %q", again.Email)
	}

	ok, err := db.Delete(ctx, u.ID)
	if err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if ok, _ := db.Delete(ctx, u.ID); ok {
		t.Error("second delete should report false")
	}
}

func TestSessionRepository(t *testing.T) {
	db := New()
	repo := db.NewSessionRepo()
	ctx := context.Background()
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)

	u, _ := db.Create(ctx, "a", "a@x.com", "h", domain.RoleGuest)
	s := &domain.Session{Token: "tok", UserID: u.ID, CreatedAt: now, ValidUntil: now.Add(time.Hour)}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == 0 {
		t.Error("expected ID to be assigned")
	}

	active, _ := repo.HasValid(ctx, u.ID, now)
	if !active {
		t.Error("expected an active session")
	}

	changed, err := repo.Invalidate(ctx, "tok", now)
	if err != nil || !changed {
		t.Fatalf("Invalidate: %v %v", changed, err)
	}
	if changed, _ := repo.Invalidate(ctx, "tok", now); changed {
		t.Error("second Invalidate should not change anything")
	}

	got, _ := repo.GetByToken(ctx, "tok")
	if got == nil {
		t.Fatal("soft-invalidated session should be retained")
	}
	if !got.ValidUntil.Equal(now) || got.ValidAt(now) {
		t.Errorf("expected valid_until = now, got %v", got.ValidUntil)
	}
	if active, _ := repo.HasValid(ctx, u.ID, now); active {
		t.Error("expected no active session after invalidation")
	}

	n, _ := repo.DeleteInvalidBefore(ctx, now)
	if n != 0 {
		t.Errorf("cutoff is exclusive, expected 0, got %d", n)
	}
	n, _ = repo.DeleteInvalidBefore(ctx, now.Add(time.Second))
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
}

func TestDeleteUserCascadesSessions(t *testing.T) {
	db := New()
	repo := db.NewSessionRepo()
	ctx := context.Background()
	now := time.Now()

	u, _ := db.Create(ctx, "a", "a@x.com", "h", domain.RoleGuest)
	_ = repo.Create(ctx, &domain.Session{Token: "t1", UserID: u.ID, ValidUntil: now.Add(time.Hour)})
	_ = repo.Create(ctx, &domain.Session{Token: "t2", UserID: u.ID, ValidUntil: now.Add(time.Hour)})

	if _, err := db.Delete(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	for _, tok := range []string{"t1", "t2"} {
		if s, _ := repo.GetByToken(ctx, tok); s != nil {
			t.Errorf("session %s survived user deletion", tok)
		}
	}
}
