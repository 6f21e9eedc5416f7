package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/smartschedule/internal/models"
)

func TestPermissionNamesAreDisjoint(t *testing.T) {
	seen := make(map[string]Scope)
	for _, p := range RolePermissions {
		seen[p.Name()] = p.Scope()
	}
	for _, p := range TeamRulePermissions {
		_, dup := seen[p.Name()]
		require.False(t, dup, "%s is both a role and a team-rule permission", p)
	}
	assert.Len(t, known, len(RolePermissions)+len(TeamRulePermissions))
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("ViewSchedules")
	require.True(t, ok)
	assert.Equal(t, ScopeTeamRule, p.Scope())

	p, ok = Lookup("ManageSystem")
	require.True(t, ok)
	assert.Equal(t, ScopeRole, p.Scope())

	_, ok = Lookup("LaunchRockets")
	assert.False(t, ok)
}

func TestSnapshot_Has(t *testing.T) {
	snap := NewSnapshot(TeamKey(5),
		map[string]bool{"ManageSystem": false, "ViewTeams": true},
		map[string]bool{"ViewSchedules": false, "ViewAssignments": true},
	)

	tests := []struct {
		name string
		perm string
		want bool
	}{
		{name: "role granted", perm: "ViewTeams", want: true},
		{name: "role denied", perm: "ManageSystem", want: false},
		{name: "team rule granted", perm: "ViewAssignments", want: true},
		{name: "team rule denied", perm: "ViewSchedules", want: false},
		{name: "unknown name", perm: "DoesNotExist", want: false},
		{name: "empty name", perm: "", want: false},
		{name: "case sensitive", perm: "viewteams", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snap.HasName(tt.perm))
		})
	}

	assert.True(t, snap.Has(ViewAssignments))
	assert.False(t, snap.Has(ViewSchedules))
	assert.False(t, snap.Has(nil))
}

func TestSnapshot_NilGrantsNothing(t *testing.T) {
	var snap *Snapshot
	assert.False(t, snap.Has(ManageSystem))
	assert.False(t, snap.HasName("ViewTeams"))
	assert.Nil(t, snap.Granted())
	assert.Equal(t, "<nil snapshot>", snap.String())
}

func TestSnapshot_DuplicateGrantedInEitherMapping(t *testing.T) {
	tests := []struct {
		name     string
		role     bool
		teamRule bool
		expect   bool
	}{
		{name: "role only", role: true, teamRule: false, expect: true},
		{name: "team rule only", role: false, teamRule: true, expect: true},
		{name: "both", role: true, teamRule: true, expect: true},
		{name: "neither", role: false, teamRule: false, expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewSnapshot(NoTeam,
				map[string]bool{"Shared": tt.role},
				map[string]bool{"Shared": tt.teamRule},
			)
			assert.Equal(t, tt.expect, snap.HasName("Shared"))
		})
	}
}

func TestSnapshot_IsolatedFromInputMaps(t *testing.T) {
	role := map[string]bool{"ViewTeams": true}
	snap := NewSnapshot(NoTeam, role, nil)

	role["ViewTeams"] = false
	role["ManageSystem"] = true

	assert.True(t, snap.HasName("ViewTeams"))
	assert.False(t, snap.HasName("ManageSystem"))
	assert.ElementsMatch(t, []string{"ViewTeams"}, snap.Granted())
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, NoTeam, KeyFor(nil))
	assert.Equal(t, TeamKey(5), KeyFor(&models.Team{ID: 5}))
	assert.Equal(t, "team:5", TeamKey(5).String())
	assert.Equal(t, "no-team", NoTeam.String())
	assert.NotEqual(t, NoTeam, TeamKey(0))
}
