// Package permission computes the caller's role and capability set for a
// session snapshot.
package permission

import (
	"sanctuary-client/internal/auth"
	"sanctuary-client/internal/model"
)

// Grant is the outcome of a resolution: a role and the permissions it
// carries. Degraded marks a grant issued under the availability fallback
// rather than a confirmed roster match. Grants are derived per call and must
// not be cached across session snapshots.
type Grant struct {
	Role        model.Role
	Permissions []model.Permission
	Degraded    bool
}

func (g Grant) Has(perm model.Permission) bool {
	for _, p := range g.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

var rolePermissions = map[model.Role][]model.Permission{
	model.RoleHost: {
		model.PermCreateRoom,
		model.PermManageParticipants,
		model.PermModerate,
		model.PermEndSession,
	},
	model.RoleModerator: {
		model.PermCreateRoom,
		model.PermModerate,
	},
	model.RoleParticipant: {
		model.PermJoinRoom,
		model.PermSendMessage,
	},
}

func grantFor(role model.Role) Grant {
	perms := rolePermissions[role]
	out := make([]model.Permission, len(perms))
	copy(out, perms)
	return Grant{Role: role, Permissions: out}
}

// Resolver derives grants from a session snapshot plus the current
// credential. Pure apart from credential reads: it performs no network I/O,
// so callers wanting a fresher roster refetch the session before resolving.
type Resolver struct {
	creds *auth.Store

	// Strict disables the availability fallback: an identity missing from
	// the roster always resolves to none, even with a live credential.
	Strict bool
}

func NewResolver(creds *auth.Store) *Resolver {
	return &Resolver{creds: creds}
}

// Resolve returns the highest role it can establish for the current
// credential against the snapshot. When the roster has no match but the
// caller holds a live credential, it issues a degraded-confidence
// participant grant that includes create_room — the roster may simply be
// stale after a reconnect, and denying room creation outright is the worse
// failure mode. Strict mode turns that fallback off.
func (r *Resolver) Resolve(session model.Session) Grant {
	ident, ok := r.creds.Identity()
	if !ok {
		return Grant{Role: model.RoleNone}
	}

	if session.HostID != "" && session.HostID == ident.UserID {
		return grantFor(model.RoleHost)
	}

	if p, ok := session.Participant(ident.UserID); ok {
		switch {
		case p.IsHost:
			return grantFor(model.RoleHost)
		case p.IsModerator:
			return grantFor(model.RoleModerator)
		default:
			return grantFor(model.RoleParticipant)
		}
	}

	if !r.Strict {
		if token, ok := r.creds.Token(); ok && r.creds.Valid(token) {
			g := grantFor(model.RoleParticipant)
			g.Permissions = append(g.Permissions, model.PermCreateRoom)
			g.Degraded = true
			return g
		}
	}

	return Grant{Role: model.RoleNone}
}
