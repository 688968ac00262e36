package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"loft-messaging/domain"
	"loft-messaging/domain/event"
	"loft-messaging/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// recordingBus captures published events synchronously, replacing the
// orchestrator in service tests.
type recordingBus struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (b *recordingBus) Publish(e event.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) all() []event.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.DomainEvent(nil), b.events...)
}

func (b *recordingBus) ofType(match func(event.DomainEvent) bool) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range b.all() {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

// fakeDirectory is an in-memory contract.IDirectory. Setting unavailable
// simulates a directory outage.
type fakeDirectory struct {
	profiles    map[string]domain.Profile
	teams       map[string][]domain.TeamID
	members     map[domain.TeamID][]string
	unavailable bool
}

func newFakeDirectory(profiles ...domain.Profile) *fakeDirectory {
	d := &fakeDirectory{
		profiles: make(map[string]domain.Profile),
		teams:    make(map[string][]domain.TeamID),
		members:  make(map[domain.TeamID][]string),
	}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *fakeDirectory) addTeam(teamID domain.TeamID, userIDs ...string) {
	for _, id := range userIDs {
		d.teams[id] = append(d.teams[id], teamID)
		d.members[teamID] = append(d.members[teamID], id)
	}
}

func (d *fakeDirectory) Profile(_ context.Context, userID string) (domain.Profile, error) {
	if d.unavailable {
		return domain.Profile{}, fmt.Errorf("directory down")
	}
	p, ok := d.profiles[userID]
	if !ok {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, errors.ErrNotFound)
	}
	return p, nil
}

func (d *fakeDirectory) Profiles(_ context.Context) ([]domain.Profile, error) {
	if d.unavailable {
		return nil, fmt.Errorf("directory down")
	}
	var out []domain.Profile
	for _, p := range d.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (d *fakeDirectory) Teams(_ context.Context, userID string) ([]domain.TeamID, error) {
	if d.unavailable {
		return nil, fmt.Errorf("directory down")
	}
	return d.teams[userID], nil
}

func (d *fakeDirectory) TeamMembers(_ context.Context, teamID domain.TeamID) ([]string, error) {
	if d.unavailable {
		return nil, fmt.Errorf("directory down")
	}
	return d.members[teamID], nil
}
