package permission

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sanctuary-client/internal/auth"
	"sanctuary-client/internal/model"
)

func storeFor(t *testing.T, userID string) *auth.Store {
	t.Helper()
	claims := jwt.MapClaims{"id": userID, "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return auth.NewStore(auth.NewMemorySource(tok))
}

func testSession() model.Session {
	return model.Session{
		ID:     "s1",
		HostID: "host-1",
		Participants: []model.Participant{
			{ID: "host-1", IsHost: true},
			{ID: "mod-1", IsModerator: true},
			{ID: "part-1"},
		},
	}
}

func TestResolve_Host(t *testing.T) {
	r := NewResolver(storeFor(t, "host-1"))
	g := r.Resolve(testSession())
	if g.Role != model.RoleHost {
		t.Fatalf("expected host, got %v", g.Role)
	}
	if !g.Has(model.PermCreateRoom) || !g.Has(model.PermEndSession) {
		t.Fatalf("expected host permissions, got %v", g.Permissions)
	}
	if g.Degraded {
		t.Fatalf("expected confirmed grant")
	}
}

func TestResolve_Moderator(t *testing.T) {
	g := NewResolver(storeFor(t, "mod-1")).Resolve(testSession())
	if g.Role != model.RoleModerator {
		t.Fatalf("expected moderator, got %v", g.Role)
	}
	if !g.Has(model.PermCreateRoom) || !g.Has(model.PermModerate) {
		t.Fatalf("unexpected permissions %v", g.Permissions)
	}
	if g.Has(model.PermEndSession) {
		t.Fatalf("moderator must not end sessions")
	}
}

func TestResolve_Participant(t *testing.T) {
	g := NewResolver(storeFor(t, "part-1")).Resolve(testSession())
	if g.Role != model.RoleParticipant {
		t.Fatalf("expected participant, got %v", g.Role)
	}
	if g.Has(model.PermCreateRoom) {
		t.Fatalf("confirmed participant must not create rooms")
	}
}

func TestResolve_NoCredential(t *testing.T) {
	r := NewResolver(auth.NewStore(auth.NewMemorySource("")))
	g := r.Resolve(testSession())
	if g.Role != model.RoleNone || len(g.Permissions) != 0 {
		t.Fatalf("expected empty grant, got %+v", g)
	}
}

func TestResolve_UnknownIdentityDegradedFallback(t *testing.T) {
	g := NewResolver(storeFor(t, "stranger")).Resolve(testSession())
	if g.Role != model.RoleParticipant {
		t.Fatalf("expected degraded participant, got %v", g.Role)
	}
	if !g.Degraded {
		t.Fatalf("expected degraded flag")
	}
	if !g.Has(model.PermCreateRoom) {
		t.Fatalf("degraded grant must include create_room")
	}
	if g.Has(model.PermModerate) || g.Has(model.PermEndSession) {
		t.Fatalf("degraded grant must never escalate, got %v", g.Permissions)
	}
}

func TestResolve_UnknownIdentityStrict(t *testing.T) {
	r := NewResolver(storeFor(t, "stranger"))
	r.Strict = true
	g := r.Resolve(testSession())
	if g.Role != model.RoleNone {
		t.Fatalf("expected none in strict mode, got %v", g.Role)
	}
}

func TestResolve_ExpiredCredentialNoFallback(t *testing.T) {
	claims := jwt.MapClaims{"id": "stranger", "exp": time.Now().Add(-time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	r := NewResolver(auth.NewStore(auth.NewMemorySource(tok)))
	g := r.Resolve(testSession())
	if g.Role != model.RoleNone {
		t.Fatalf("expected none for expired credential, got %v", g.Role)
	}
}

func TestResolve_HostWithoutRosterEntry(t *testing.T) {
	sess := model.Session{ID: "s1", HostID: "host-1"}
	g := NewResolver(storeFor(t, "host-1")).Resolve(sess)
	if g.Role != model.RoleHost {
		t.Fatalf("host id match must win even with an empty roster, got %v", g.Role)
	}
}
