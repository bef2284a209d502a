// Package access gates screening requests: identity authorization first,
// then quota enforcement. The two steps are separate so callers can run
// cheap input validation in between without spending a quota lookup.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/walletscreen/walletscreen/internal/identity"
	"github.com/walletscreen/walletscreen/internal/usage"
)

// Authorization is the result of resolving a handle's standing.
type Authorization struct {
	Known  bool `json:"known"`
	Active bool `json:"active"`
	Admin  bool `json:"admin"`
}

// Authorized reports whether the handle may interact at all. Deactivated
// identities are known but not authorized.
func (a Authorization) Authorized() bool {
	return a.Known && a.Active
}

// DenyReason returns the user-facing message for an unauthorized standing,
// or "" when authorized.
func (a Authorization) DenyReason() string {
	switch {
	case !a.Known:
		return "You are not authorized to use this service"
	case !a.Active:
		return "Your account has been deactivated"
	default:
		return ""
	}
}

// Controller answers "may this handle run a screening right now".
type Controller struct {
	identities *identity.Service
	ledger     *usage.Ledger
}

func NewController(identities *identity.Service, ledger *usage.Ledger) *Controller {
	return &Controller{identities: identities, ledger: ledger}
}

// Authorize resolves the handle's standing without consuming quota.
func (c *Controller) Authorize(ctx context.Context, handle string) (Authorization, error) {
	user, err := c.identities.Get(ctx, handle)
	if errors.Is(err, identity.ErrNotFound) {
		return Authorization{}, nil
	}
	if err != nil {
		return Authorization{}, fmt.Errorf("authorize %s: %w", handle, err)
	}
	return Authorization{Known: true, Active: user.Active, Admin: user.Admin}, nil
}

// CheckQuota reports whether the handle has window headroom for one more
// screening. Callers are expected to have authorized the handle first.
func (c *Controller) CheckQuota(ctx context.Context, handle string) (*usage.LimitCheck, error) {
	check, err := c.ledger.CheckLimit(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("check limits for %s: %w", handle, err)
	}
	return check, nil
}
