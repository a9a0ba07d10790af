package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sanctuary-client/internal/model"
)

var ErrNoToken = errors.New("no credential available")

// Store resolves the current bearer credential from an ordered list of
// backing sources. The first source is the primary durable location; later
// sources are fallbacks. The client holds no signing secret, so tokens are
// validated structurally (compact form, decodable claims, expiry) rather than
// cryptographically — the backend remains the verifier of record.
type Store struct {
	sources []TokenSource
}

func NewStore(sources ...TokenSource) *Store {
	return &Store{sources: sources}
}

// Token returns the first well-formed credential found across the sources.
// Per-source read failures are treated as not-found, never fatal.
func (s *Store) Token() (string, bool) {
	for _, src := range s.sources {
		token, err := src.Read()
		if err != nil || token == "" {
			continue
		}
		if wellFormed(token) {
			return token, true
		}
	}
	return "", false
}

func (s *Store) HasToken() bool {
	_, ok := s.Token()
	return ok
}

// AuthHeaders returns the outbound auth headers. The token is sent under
// three names at once because backend middleware differs per route
// generation; the bearer header is the canonical one.
func (s *Store) AuthHeaders() map[string]string {
	token, ok := s.Token()
	if !ok {
		return map[string]string{}
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
		"x-auth-token":  token,
		"token":         token,
	}
}

// Valid reports whether the token has the three-segment compact form, its
// claims decode, and its expiry claim (if present) is in the future. Any
// decode failure means invalid.
func (s *Store) Valid(token string) bool {
	claims, err := decodeClaims(token)
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp != nil && exp.Before(time.Now()) {
		return false
	}
	return true
}

// Identity decodes the current credential's claims and normalizes the
// subject id. Returns false when no credential is present or it does not
// decode.
func (s *Store) Identity() (model.Identity, bool) {
	token, ok := s.Token()
	if !ok {
		return model.Identity{}, false
	}
	claims, err := decodeClaims(token)
	if err != nil {
		return model.Identity{}, false
	}

	userID := subjectID(claims)
	if userID == "" {
		return model.Identity{}, false
	}

	ident := model.Identity{UserID: userID}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		ident.IssuedAt = iat.UnixMilli()
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ident.ExpiresAt = exp.UnixMilli()
	}
	return ident, true
}

// Persist writes the token to the primary source.
func (s *Store) Persist(token string) error {
	if len(s.sources) == 0 {
		return fmt.Errorf("no token sources configured")
	}
	if !wellFormed(token) {
		return fmt.Errorf("malformed token")
	}
	return s.sources[0].Write(token)
}

// Clear removes the credential from every source. Read-only sources that
// cannot clear report their error, but clearing continues past them.
func (s *Store) Clear() error {
	var lastErr error
	for _, src := range s.sources {
		if err := src.Clear(); err != nil && !errors.Is(err, ErrReadOnly) {
			lastErr = fmt.Errorf("clear %s: %w", src.Name(), err)
		}
	}
	return lastErr
}

func wellFormed(token string) bool {
	return strings.Count(token, ".") == 2
}

func decodeClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// subjectID normalizes the subject across the claim key variants different
// backend versions have emitted.
func subjectID(claims jwt.MapClaims) string {
	for _, key := range []string{"id", "userId", "_id", "sub"} {
		if v, ok := claims[key]; ok {
			if s := claimString(v); s != "" {
				return s
			}
		}
	}
	if user, ok := claims["user"].(map[string]any); ok {
		if s := claimString(user["id"]); s != "" {
			return s
		}
	}
	return ""
}

func claimString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return ""
	}
}
