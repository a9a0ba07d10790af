package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return tok
}

type failingSource struct{}

func (failingSource) Name() string          { return "failing" }
func (failingSource) Read() (string, error) { return "", errors.New("storage unavailable") }
func (failingSource) Write(string) error    { return errors.New("storage unavailable") }
func (failingSource) Clear() error          { return errors.New("storage unavailable") }

func TestStore_TokenPrecedence(t *testing.T) {
	primary := mintToken(t, jwt.MapClaims{"id": "u1"})
	fallback := mintToken(t, jwt.MapClaims{"id": "u2"})
	s := NewStore(NewMemorySource(primary), NewMemorySource(fallback))

	tok, ok := s.Token()
	if !ok {
		t.Fatalf("expected token")
	}
	if tok != primary {
		t.Fatalf("expected primary token")
	}
}

func TestStore_TokenSkipsFailingSource(t *testing.T) {
	fallback := mintToken(t, jwt.MapClaims{"id": "u2"})
	s := NewStore(failingSource{}, NewMemorySource(fallback))

	tok, ok := s.Token()
	if !ok || tok != fallback {
		t.Fatalf("expected fallback token, got %q ok=%v", tok, ok)
	}
}

func TestStore_TokenSkipsMalformed(t *testing.T) {
	good := mintToken(t, jwt.MapClaims{"id": "u1"})
	s := NewStore(NewMemorySource("not-a-jwt"), NewMemorySource(good))

	tok, ok := s.Token()
	if !ok || tok != good {
		t.Fatalf("expected well-formed token, got %q ok=%v", tok, ok)
	}
}

func TestStore_AuthHeaders(t *testing.T) {
	tok := mintToken(t, jwt.MapClaims{"id": "u1"})
	s := NewStore(NewMemorySource(tok))

	headers := s.AuthHeaders()
	if headers["Authorization"] != "Bearer "+tok {
		t.Fatalf("unexpected Authorization header %q", headers["Authorization"])
	}
	if headers["x-auth-token"] != tok || headers["token"] != tok {
		t.Fatalf("expected legacy headers")
	}

	empty := NewStore(NewMemorySource(""))
	if len(empty.AuthHeaders()) != 0 {
		t.Fatalf("expected empty headers without token")
	}
}

func TestStore_Valid(t *testing.T) {
	s := NewStore()

	live := mintToken(t, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	if !s.Valid(live) {
		t.Fatalf("expected live token valid")
	}

	expired := mintToken(t, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	if s.Valid(expired) {
		t.Fatalf("expected expired token invalid")
	}

	noExp := mintToken(t, jwt.MapClaims{"id": "u1"})
	if !s.Valid(noExp) {
		t.Fatalf("expected token without exp valid")
	}

	if s.Valid("a.b") || s.Valid("garbage") {
		t.Fatalf("expected malformed tokens invalid")
	}
}

func TestStore_IdentityClaimVariants(t *testing.T) {
	cases := []jwt.MapClaims{
		{"id": "u1"},
		{"userId": "u1"},
		{"_id": "u1"},
		{"sub": "u1"},
		{"user": map[string]any{"id": "u1"}},
	}
	for _, claims := range cases {
		s := NewStore(NewMemorySource(mintToken(t, claims)))
		ident, ok := s.Identity()
		if !ok {
			t.Fatalf("expected identity for claims %v", claims)
		}
		if ident.UserID != "u1" {
			t.Fatalf("expected u1, got %q for claims %v", ident.UserID, claims)
		}
	}
}

func TestStore_IdentityNumericID(t *testing.T) {
	s := NewStore(NewMemorySource(mintToken(t, jwt.MapClaims{"id": 42})))
	ident, ok := s.Identity()
	if !ok || ident.UserID != "42" {
		t.Fatalf("expected 42, got %q ok=%v", ident.UserID, ok)
	}
}

func TestStore_IdentityAbsent(t *testing.T) {
	s := NewStore(NewMemorySource(""))
	if _, ok := s.Identity(); ok {
		t.Fatalf("expected no identity")
	}
}

func TestStore_Clear(t *testing.T) {
	tok := mintToken(t, jwt.MapClaims{"id": "u1"})
	primary := NewMemorySource(tok)
	fallback := NewMemorySource(tok)
	s := NewStore(primary, fallback)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.HasToken() {
		t.Fatalf("expected no token after clear")
	}
}

func TestFileSource_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	src := NewFileSource(path)
	tok := mintToken(t, jwt.MapClaims{"id": "u1"})

	if got, err := src.Read(); err != nil || got != "" {
		t.Fatalf("expected empty read, got %q err=%v", got, err)
	}
	if err := src.Write(tok); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != tok {
		t.Fatalf("expected token back, got %q", got)
	}
	if err := src.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := src.Read(); got != "" {
		t.Fatalf("expected empty after clear, got %q", got)
	}
}

func TestStore_Persist(t *testing.T) {
	primary := NewMemorySource("")
	s := NewStore(primary)
	tok := mintToken(t, jwt.MapClaims{"id": "u1"})

	if err := s.Persist(tok); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	got, _ := s.Token()
	if got != tok {
		t.Fatalf("expected persisted token")
	}

	if err := s.Persist("garbage"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}
