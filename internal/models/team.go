package models

// Team is a unit of members that assignments and schedules are scoped to.
// The selected team is the context all team-rule permissions are resolved in.
type Team struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Invite is a pending membership offer for a team.
type Invite struct {
	ID        int    `json:"id"`
	TeamID    int    `json:"teamId"`
	TeamName  string `json:"teamName,omitempty"`
	Email     string `json:"email,omitempty"`
	InvitedBy string `json:"invitedBy,omitempty"`
	Status    string `json:"status,omitempty"`
}
