package permissions

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/models"
)

// Key identifies the team a snapshot was resolved for.
type Key struct {
	TeamID  int
	HasTeam bool
}

// NoTeam is the key used when no team is selected.
var NoTeam = Key{}

// TeamKey returns the key for team id.
func TeamKey(id int) Key {
	return Key{TeamID: id, HasTeam: true}
}

// KeyFor returns the key for the given selection, NoTeam when team is nil.
func KeyFor(team *models.Team) Key {
	if team == nil {
		return NoTeam
	}
	return TeamKey(team.ID)
}

func (k Key) String() string {
	if !k.HasTeam {
		return "no-team"
	}
	return "team:" + strconv.Itoa(k.TeamID)
}

// Snapshot is the set of permissions the backend resolved for a user and key.
// It is immutable once built.
type Snapshot struct {
	Key                 Key
	RolePermissions     map[string]bool
	TeamRulePermissions map[string]bool
	ResolvedAt          time.Time

	table map[string]bool
}

// NewSnapshot builds a snapshot and its lookup table. A name is granted when
// it is true in either mapping.
func NewSnapshot(key Key, role, teamRule map[string]bool) *Snapshot {
	s := &Snapshot{
		Key:                 key,
		RolePermissions:     maps.Clone(role),
		TeamRulePermissions: maps.Clone(teamRule),
		ResolvedAt:          time.Now(),
		table:               make(map[string]bool, len(role)+len(teamRule)),
	}

	for name, granted := range teamRule {
		s.table[name] = granted
	}
	for name, granted := range role {
		if _, dup := teamRule[name]; dup {
			log.Warn().Str("permission", name).Str("key", key.String()).
				Msg("permission present in both mappings")
		}
		s.table[name] = s.table[name] || granted
	}

	return s
}

// Has reports whether p is granted. A nil snapshot grants nothing.
func (s *Snapshot) Has(p Permission) bool {
	if p == nil {
		return false
	}
	return s.HasName(p.Name())
}

// HasName reports whether the named permission is granted. Unknown names are denied.
func (s *Snapshot) HasName(name string) bool {
	if s == nil {
		return false
	}
	return s.table[name]
}

// Granted returns the sorted names of all granted permissions.
func (s *Snapshot) Granted() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.table))
	for name, ok := range s.table {
		if ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (s *Snapshot) String() string {
	if s == nil {
		return "<nil snapshot>"
	}
	return fmt.Sprintf("snapshot{%s, role=%d, team=%d}", s.Key, len(s.RolePermissions), len(s.TeamRulePermissions))
}
