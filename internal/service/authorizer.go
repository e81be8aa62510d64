package service

import (
	"context"
	"fmt"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// Authorizer decides what a caller may do with a diagram.
//
// Rules, first match wins:
//  1. Administrators may do anything.
//  2. The owner may do anything.
//  3. An unexpired share addressed to the caller's e-mail grants its level.
//  4. A public diagram grants read to everyone, guests included.
type Authorizer struct {
	shares repository.ShareRepository
	now    clock
}

func NewAuthorizer(shares repository.ShareRepository) *Authorizer {
	return &Authorizer{shares: shares, now: systemClock}
}

// Level returns the strongest permission the caller holds on d, or "" for
// none.
func (a *Authorizer) Level(ctx context.Context, caller model.Caller, d *model.Diagram) (model.PermissionLevel, error) {
	if caller.Admin || (!caller.IsGuest() && d.Owner == caller.UserID) {
		return model.PermissionAdmin, nil
	}

	var best model.PermissionLevel
	if !caller.IsGuest() && caller.Email != "" {
		shares, err := a.shares.FindShareFor(ctx, d.ID, caller.Email)
		if err != nil {
			return "", fmt.Errorf("checking shares of %s: %w", d.ID, err)
		}
		now := a.now()
		for i := range shares {
			if lvl := shares[i].AccessLevel(now); lvl.Valid() && !best.Allows(lvl) {
				best = lvl
			}
		}
	}

	if best == "" && d.IsPublic {
		best = model.PermissionRead
	}
	return best, nil
}

// Require fails unless the caller holds at least required on d. Guests get
// ErrUnauthorized so clients know logging in may help.
func (a *Authorizer) Require(ctx context.Context, caller model.Caller, d *model.Diagram, required model.PermissionLevel) error {
	lvl, err := a.Level(ctx, caller, d)
	if err != nil {
		return err
	}
	if lvl.Allows(required) {
		return nil
	}
	if caller.IsGuest() {
		return apperror.Unauthorized()
	}
	return apperror.Forbidden(fmt.Sprintf("you don't have %s permission on this diagram", required))
}

// RequireOwner fails unless the caller owns d or is an administrator.
func (a *Authorizer) RequireOwner(caller model.Caller, d *model.Diagram) error {
	if caller.Admin || (!caller.IsGuest() && d.Owner == caller.UserID) {
		return nil
	}
	if caller.IsGuest() {
		return apperror.Unauthorized()
	}
	return apperror.Forbidden("only the owner can do this")
}
