// Package directory is the profile directory consumed by the messaging
// core: user id → profile, plus team membership lookups. The messaging
// side only reads; population happens at provisioning time.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"loft-messaging/domain"
	"loft-messaging/errors"
)

const (
	profilePrefix  = "profile:"
	teamPrefix     = "team:"
	userTeamPrefix = "userteam:"
)

type Directory struct {
	db *badger.DB
}

func New(db *badger.DB) *Directory {
	return &Directory{db: db}
}

// diskProfile is the stored representation of a profile.
type diskProfile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UpsertProfile stores or replaces a profile row.
func (d *Directory) UpsertProfile(p domain.Profile) error {
	data, err := json.Marshal(diskProfile{
		ID:        p.ID,
		FullName:  p.FullName,
		Email:     p.Email,
		Role:      string(p.Role),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profilePrefix+p.ID), data)
	})
}

// AddTeamMember records the membership in both directions so that
// "teams of a user" and "users of a team" are single prefix scans.
func (d *Directory) AddTeamMember(teamID domain.TeamID, userID string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(fmt.Sprintf("%s%s:%s", teamPrefix, teamID, userID)), nil); err != nil {
			return err
		}
		return txn.Set([]byte(fmt.Sprintf("%s%s:%s", userTeamPrefix, userID, teamID)), nil)
	})
}

func (d *Directory) Profile(_ context.Context, userID string) (domain.Profile, error) {
	var disk diskProfile
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profilePrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, errors.ErrNotFound)
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return toProfile(disk), nil
}

func (d *Directory) Profiles(_ context.Context) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(profilePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskProfile
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			profiles = append(profiles, toProfile(disk))
		}
		return nil
	})
	return profiles, err
}

func (d *Directory) Teams(_ context.Context, userID string) ([]domain.TeamID, error) {
	ids, err := d.scanSuffixes(fmt.Sprintf("%s%s:", userTeamPrefix, userID))
	if err != nil {
		return nil, err
	}
	teams := make([]domain.TeamID, 0, len(ids))
	for _, id := range ids {
		teams = append(teams, domain.TeamID(id))
	}
	return teams, nil
}

func (d *Directory) TeamMembers(_ context.Context, teamID domain.TeamID) ([]string, error) {
	return d.scanSuffixes(fmt.Sprintf("%s%s:", teamPrefix, teamID))
}

// scanSuffixes collects the part of each key after the given prefix.
func (d *Directory) scanSuffixes(prefixStr string) ([]string, error) {
	var out []string
	err := d.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		prefix := []byte(prefixStr)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return out, err
}

func toProfile(disk diskProfile) domain.Profile {
	return domain.Profile{
		ID:       disk.ID,
		FullName: disk.FullName,
		Email:    disk.Email,
		Role:     domain.Role(disk.Role),
	}
}
