package identity

import (
	"context"
	"errors"
	"testing"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	h := newTestHasher(t)
	hash, err := h.Hash("hr-password-123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	d, err := NewDirectory(h,
		User{Email: "Grace@Corp.Example", PasswordHash: hash, FName: "Grace", LName: "Hopper", Role: "hr"},
		User{Email: "plain@corp.example", PasswordHash: hash},
	)
	if err != nil {
		t.Fatalf("NewDirectory error: %v", err)
	}
	return d
}

func TestDirectoryAuthenticate(t *testing.T) {
	d := newTestDirectory(t)

	s, err := d.Authenticate(context.Background(), " grace@corp.example ", "hr-password-123")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if s.Email != "Grace@Corp.Example" || s.Role != "HR" || s.DisplayName != "Grace Hopper" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.UID != "Grace@Corp.Example" {
		t.Fatalf("expected uid to default to email, got %q", s.UID)
	}

	plain, err := d.Authenticate(context.Background(), "plain@corp.example", "hr-password-123")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if plain.Role != "USER" || plain.DisplayName != "plain" {
		t.Fatalf("expected defaults, got %+v", plain)
	}
}

func TestDirectoryRejectsBadCredentials(t *testing.T) {
	d := newTestDirectory(t)

	if _, err := d.Authenticate(context.Background(), "grace@corp.example", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := d.Authenticate(context.Background(), "nobody@corp.example", "hr-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestDirectoryHonorsCancelledContext(t *testing.T) {
	d := newTestDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Authenticate(ctx, "grace@corp.example", "hr-password-123"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDirectoryPutValidates(t *testing.T) {
	d := newTestDirectory(t)

	if err := d.Put(User{PasswordHash: "x"}); err == nil {
		t.Fatal("expected missing email to be rejected")
	}
	if err := d.Put(User{Email: "a@b.c", PasswordHash: "not-a-hash"}); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("expected 2 users, got %d", d.Len())
	}
}
