package permissions

// Scope identifies which backend mapping a permission is resolved from.
type Scope uint8

const (
	// ScopeRole permissions are system wide and independent of the selected team.
	ScopeRole Scope = iota + 1
	// ScopeTeamRule permissions come from the user's role in the selected team.
	ScopeTeamRule
)

func (s Scope) String() string {
	switch s {
	case ScopeRole:
		return "role"
	case ScopeTeamRule:
		return "team-rule"
	default:
		return "unknown"
	}
}

// Permission is a named capability. Implemented by RolePermission and
// TeamRulePermission so a name can only belong to one mapping.
type Permission interface {
	Name() string
	Scope() Scope
}

// RolePermission is a system wide capability.
type RolePermission string

func (p RolePermission) Name() string { return string(p) }
func (p RolePermission) Scope() Scope { return ScopeRole }

// TeamRulePermission is a capability scoped to the selected team.
type TeamRulePermission string

func (p TeamRulePermission) Name() string { return string(p) }
func (p TeamRulePermission) Scope() Scope { return ScopeTeamRule }

const (
	ManageSystem RolePermission = "ManageSystem"
	ViewTeams    RolePermission = "ViewTeams"
	CreateTeams  RolePermission = "CreateTeams"
	EditTeams    RolePermission = "EditTeams"
	DeleteTeams  RolePermission = "DeleteTeams"
	ViewUsers    RolePermission = "ViewUsers"
	CreateUsers  RolePermission = "CreateUsers"
	EditUsers    RolePermission = "EditUsers"
	DeleteUsers  RolePermission = "DeleteUsers"
	ViewOwnTeam  RolePermission = "ViewOwnTeam"
	ViewOwnUser  RolePermission = "ViewOwnUser"
)

const (
	ViewTeam           TeamRulePermission = "ViewTeam"
	EditTeam           TeamRulePermission = "EditTeam"
	CreateAssignments  TeamRulePermission = "CreateAssignments"
	EditAssignments    TeamRulePermission = "EditAssignments"
	DeleteAssignments  TeamRulePermission = "DeleteAssignments"
	ViewAssignments    TeamRulePermission = "ViewAssignments"
	ManageInvites      TeamRulePermission = "ManageInvites"
	CreateSchedules    TeamRulePermission = "CreateSchedules"
	EditSchedules      TeamRulePermission = "EditSchedules"
	DeleteSchedules    TeamRulePermission = "DeleteSchedules"
	ViewSchedules      TeamRulePermission = "ViewSchedules"
	ManageTeamSettings TeamRulePermission = "ManageTeamSettings"
)

// RolePermissions lists the known role permissions.
var RolePermissions = []RolePermission{
	ManageSystem,
	ViewTeams, CreateTeams, EditTeams, DeleteTeams,
	ViewUsers, CreateUsers, EditUsers, DeleteUsers,
	ViewOwnTeam, ViewOwnUser,
}

// TeamRulePermissions lists the known team-rule permissions.
var TeamRulePermissions = []TeamRulePermission{
	ViewTeam, EditTeam,
	CreateAssignments, EditAssignments, DeleteAssignments, ViewAssignments,
	ManageInvites,
	CreateSchedules, EditSchedules, DeleteSchedules, ViewSchedules,
	ManageTeamSettings,
}

var known = func() map[string]Permission {
	m := make(map[string]Permission, len(RolePermissions)+len(TeamRulePermissions))
	for _, p := range RolePermissions {
		m[p.Name()] = p
	}
	for _, p := range TeamRulePermissions {
		m[p.Name()] = p
	}
	return m
}()

// Lookup returns the known permission with the given name.
func Lookup(name string) (Permission, bool) {
	p, ok := known[name]
	return p, ok
}
