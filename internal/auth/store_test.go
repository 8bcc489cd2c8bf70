package auth

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestDefaultsSeeded(t *testing.T) {
	s := openTestStore(t)

	role, err := s.Validate("admin", "admin123")
	if err != nil {
		t.Fatalf("default admin login: %v", err)
	}
	if role != protocol.RoleAdmin {
		t.Errorf("admin role = %s", role)
	}

	role, err = s.Validate("user", "user123")
	if err != nil {
		t.Fatalf("default user login: %v", err)
	}
	if role != protocol.RoleUser {
		t.Errorf("user role = %s", role)
	}
}

func TestValidateRejects(t *testing.T) {
	s := openTestStore(t)

	tests := []struct{ name, username, password string }{
		{"WrongPassword", "admin", "nope"},
		{"UnknownUser", "ghost", "whatever"},
		{"EmptyPassword", "admin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Validate(tt.username, tt.password); !errors.Is(err, ErrBadCredentials) {
				t.Errorf("err = %v, want ErrBadCredentials", err)
			}
		})
	}
}

func TestAddRemove(t *testing.T) {
	s := openTestStore(t)

	if err := s.Add("operator", "s3cret", protocol.RoleUser, "Vardiya Operatörü"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("operator", "other", protocol.RoleUser, ""); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate Add err = %v, want ErrUserExists", err)
	}
	if _, err := s.Validate("operator", "s3cret"); err != nil {
		t.Errorf("added user cannot log in: %v", err)
	}

	if err := s.Remove("operator"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Validate("operator", "s3cret"); !errors.Is(err, ErrBadCredentials) {
		t.Error("removed user can still log in")
	}
	if err := s.Remove("operator"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("second Remove err = %v, want ErrUnknownUser", err)
	}
}

func TestAddValidation(t *testing.T) {
	s := openTestStore(t)
	if err := s.Add("", "pw", protocol.RoleUser, ""); err == nil {
		t.Error("empty username accepted")
	}
	if err := s.Add("x", "", protocol.RoleUser, ""); err == nil {
		t.Error("empty password accepted")
	}
	if err := s.Add("x", "pw", protocol.Role("root"), ""); err == nil {
		t.Error("invalid role accepted")
	}
}

func TestSetPassword(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetPassword("user", "newpass"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if _, err := s.Validate("user", "user123"); !errors.Is(err, ErrBadCredentials) {
		t.Error("old password still valid")
	}
	if _, err := s.Validate("user", "newpass"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if err := s.SetPassword("ghost", "x"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("SetPassword unknown err = %v", err)
	}
}

func TestListHidesHashes(t *testing.T) {
	s := openTestStore(t)

	users := s.List()
	if len(users) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(users))
	}
	// Sorted by username: admin before user.
	if users[0].Username != "admin" || users[1].Username != "user" {
		t.Errorf("order = %s, %s", users[0].Username, users[1].Username)
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Errorf("List leaked a password hash for %s", u.Username)
		}
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Add("operator", "s3cret", protocol.RoleAdmin, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	role, err := reopened.Validate("operator", "s3cret")
	if err != nil {
		t.Fatalf("login after reopen: %v", err)
	}
	if role != protocol.RoleAdmin {
		t.Errorf("role after reopen = %s", role)
	}
}
