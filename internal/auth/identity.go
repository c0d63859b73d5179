package auth

import (
	"context"

	"propdesk/internal/models"
)

// Identity is the authenticated caller as seen by the ledgers.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// System is the identity used by the schedulers.
var System = Identity{UserID: "system", Role: models.RoleAdmin}

func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// CanAccess reports whether the caller may act on an entity owned by ownerID.
func (i Identity) CanAccess(ownerID string) bool {
	if i.IsAdmin() {
		return true
	}
	return i.UserID != "" && i.UserID == ownerID
}

type ctxKey int

const identityKey ctxKey = 1

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
