// Package auth holds the credential store: a JSON file of users with
// sha256-hashed passwords and a role per user.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

const timestampFormat = "2006-01-02 15:04:05"

var (
	ErrBadCredentials = errors.New("auth: invalid username or password")
	ErrUserExists     = errors.New("auth: user already exists")
	ErrUnknownUser    = errors.New("auth: unknown user")
)

type User struct {
	Username     string        `json:"username"`
	PasswordHash string        `json:"password_hash"`
	Role         protocol.Role `json:"role"`
	FullName     string        `json:"full_name"`
	CreatedAt    string        `json:"created_at"`
	LastLogin    string        `json:"last_login,omitempty"`
}

// Store is the on-disk user registry. All methods are safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	users map[string]*User
}

// Open loads the store at path, seeding default admin and user accounts
// when the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, users: make(map[string]*User)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.seedDefaults()
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, err
	}

	if err := json.Unmarshal(data, &s.users); err != nil {
		return nil, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	if len(s.users) == 0 {
		s.seedDefaults()
		if err := s.save(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) seedDefaults() {
	now := time.Now().Format(timestampFormat)
	s.users["admin"] = &User{
		Username:     "admin",
		PasswordHash: hashPassword("admin123"),
		Role:         protocol.RoleAdmin,
		FullName:     "Sistem Yöneticisi",
		CreatedAt:    now,
	}
	s.users["user"] = &User{
		Username:     "user",
		PasswordHash: hashPassword("user123"),
		Role:         protocol.RoleUser,
		FullName:     "Standart Kullanıcı",
		CreatedAt:    now,
	}
}

// Validate checks a username/password pair and returns the user's role.
// A successful login stamps the user's last-login time.
func (s *Store) Validate(username, password string) (protocol.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok || u.PasswordHash != hashPassword(password) {
		return "", ErrBadCredentials
	}

	u.LastLogin = time.Now().Format(timestampFormat)
	if err := s.save(); err != nil {
		// Login still succeeds; the stamp is best effort.
		fmt.Fprintf(os.Stderr, "auth: save last login: %v\n", err)
	}
	return u.Role, nil
}

func (s *Store) Add(username, password string, role protocol.Role, fullName string) error {
	if username == "" || password == "" {
		return errors.New("auth: username and password are required")
	}
	if !role.Valid() {
		return fmt.Errorf("auth: invalid role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	if fullName == "" {
		fullName = username
	}
	s.users[username] = &User{
		Username:     username,
		PasswordHash: hashPassword(password),
		Role:         role,
		FullName:     fullName,
		CreatedAt:    time.Now().Format(timestampFormat),
	}
	return s.save()
}

func (s *Store) Remove(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrUnknownUser
	}
	delete(s.users, username)
	return s.save()
}

func (s *Store) SetPassword(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrUnknownUser
	}
	u.PasswordHash = hashPassword(password)
	return s.save()
}

// List returns all users sorted by username, with password hashes blanked.
func (s *Store) List() []User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		c.PasswordHash = ""
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// save writes the user file atomically. Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
