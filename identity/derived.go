// Package identity adapts external caller identities to strongbox.Identity.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sagarc03/strongbox"
)

// DefaultNamespace seeds owner ids when no namespace is configured.
var DefaultNamespace = uuid.MustParse("6f1c5d0e-3b8a-4c2e-9f47-2d8e6a1b7c30")

// Derived resolves an owner id deterministically from the username, so the
// same username always yields the same id without a user table.
type Derived struct {
	namespace uuid.UUID
}

var _ strongbox.IdentityResolver = (*Derived)(nil)

func NewDerived(namespace uuid.UUID) *Derived {
	if namespace == uuid.Nil {
		namespace = DefaultNamespace
	}
	return &Derived{namespace: namespace}
}

func (d *Derived) ResolveOwner(ctx context.Context, username string) (strongbox.Identity, error) {
	if err := ctx.Err(); err != nil {
		return strongbox.Identity{}, fmt.Errorf("resolve owner: %w", err)
	}
	if strings.TrimSpace(username) == "" {
		return strongbox.Identity{}, fmt.Errorf("resolve owner: %w: empty username", strongbox.ErrInvalidInput)
	}

	return strongbox.Identity{
		ID:       uuid.NewSHA1(d.namespace, []byte(username)).String(),
		Username: username,
	}, nil
}
