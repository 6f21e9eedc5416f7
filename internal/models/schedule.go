package models

import "time"

// Assignment is a task definition owned by a team.
type Assignment struct {
	ID          int    `json:"id"`
	TeamID      int    `json:"teamId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Schedule is a time bounded container that members are assigned work in.
type Schedule struct {
	ID        int       `json:"id"`
	TeamID    int       `json:"teamId"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Assigned maps a member to an assignment within a schedule.
type Assigned struct {
	ID           int `json:"id"`
	ScheduleID   int `json:"scheduleId"`
	AssignmentID int `json:"assignmentId"`
	UserID       int `json:"userId"`
}
