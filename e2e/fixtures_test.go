package e2e

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"loft-messaging/directory"
	"loft-messaging/domain"
)

// Alice administers the account. Bob and Carol share team t1; Dave sits
// alone in t2.
func directoryWithFixtures(t *testing.T, db *badger.DB) *directory.Directory {
	t.Helper()
	dir := directory.New(db)

	profiles := []domain.Profile{
		{ID: "alice", FullName: "Alice Martin", Email: "alice@example.com", Role: domain.RoleAdmin},
		{ID: "bob", FullName: "Bob Sagan", Email: "bob@example.com", Role: domain.RoleMember},
		{ID: "carol", FullName: "Carol Diaz", Email: "carol@example.com", Role: domain.RoleMember},
		{ID: "dave", FullName: "Dave Okafor", Email: "dave@example.com", Role: domain.RoleMember},
	}
	for _, p := range profiles {
		require.NoError(t, dir.UpsertProfile(p))
	}
	require.NoError(t, dir.AddTeamMember("t1", "bob"))
	require.NoError(t, dir.AddTeamMember("t1", "carol"))
	require.NoError(t, dir.AddTeamMember("t2", "dave"))
	return dir
}
