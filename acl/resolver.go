// Package acl computes who a user may start a conversation with.
//
// The resolution path reads only directory data (profiles and team
// memberships), never conversation or participant rows. Keeping the two
// read paths separate is what prevents the authorization check from
// recursing into the tables it protects.
package acl

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"loft-messaging/contract"
	"loft-messaging/domain"
	"loft-messaging/errors"
)

type Resolver struct {
	directory contract.IDirectory
}

func NewResolver(directory contract.IDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// AllowedContacts returns the set of user ids the requester may message.
//
// An admin may message every other user. Anyone else may message the
// union of all admins and all users sharing at least one team with them,
// minus themself. Any directory failure is surfaced as
// ErrDirectoryUnavailable so that callers fail closed.
func (r *Resolver) AllowedContacts(ctx context.Context, userID string) (map[string]struct{}, error) {
	requester, err := r.directory.Profile(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}

	allowed := make(map[string]struct{})

	if requester.IsAdmin() {
		profiles, err := r.directory.Profiles(ctx)
		if err != nil {
			return nil, unavailable(err)
		}
		for _, p := range profiles {
			allowed[p.ID] = struct{}{}
		}
		delete(allowed, userID)
		return allowed, nil
	}

	profiles, err := r.directory.Profiles(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	admins := lo.Filter(profiles, func(p domain.Profile, _ int) bool {
		return p.IsAdmin()
	})
	for _, admin := range admins {
		allowed[admin.ID] = struct{}{}
	}

	teams, err := r.directory.Teams(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	for _, team := range teams {
		members, err := r.directory.TeamMembers(ctx, team)
		if err != nil {
			return nil, unavailable(err)
		}
		for _, member := range members {
			allowed[member] = struct{}{}
		}
	}

	delete(allowed, userID)
	return allowed, nil
}

// CanMessage reports whether every peer is in the requester's allowed set.
func (r *Resolver) CanMessage(ctx context.Context, userID string, peerIDs ...string) error {
	allowed, err := r.AllowedContacts(ctx, userID)
	if err != nil {
		return err
	}
	for _, peer := range peerIDs {
		if _, ok := allowed[peer]; !ok {
			return fmt.Errorf("user %s may not message %s: %w", userID, peer, errors.ErrForbidden)
		}
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrDirectoryUnavailable, err)
}
