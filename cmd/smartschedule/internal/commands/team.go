package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
)

// TeamCmd manages the selected team.
type TeamCmd struct {
	List   TeamListCmd   `cmd:"" help:"List your teams"`
	Select TeamSelectCmd `cmd:"" help:"Select the active team"`
	Clear  TeamClearCmd  `cmd:"" help:"Clear the team selection"`
	Show   TeamShowCmd   `cmd:"" help:"Show the selected team"`
}

type TeamListCmd struct{}

func (c *TeamListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	teams, err := a.Client.Teams.Mine(ctx)
	if err != nil {
		return err
	}

	out := globals.stdout()
	if len(teams) == 0 {
		fmt.Fprintln(out, "You are not a member of any team.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To see pending invites:")
		fmt.Fprintln(out, "  smartschedule invites list")
		return nil
	}

	selected := a.SelectedTeam()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSELECTED")
	for _, t := range teams {
		mark := ""
		if selected != nil && selected.ID == t.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Name, mark)
	}
	return w.Flush()
}

type TeamSelectCmd struct {
	ID int `arg:"" help:"Team ID"`
}

func (c *TeamSelectCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	team, err := a.SelectTeamByID(ctx, c.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "Selected team %s (%d)\n", team.Name, team.ID)
	return nil
}

type TeamClearCmd struct{}

func (c *TeamClearCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	a.ClearTeamSelection()
	fmt.Fprintln(globals.stdout(), "Team selection cleared.")
	return nil
}

type TeamShowCmd struct{}

func (c *TeamShowCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireTeam(a); err != nil {
		return err
	}

	team := a.SelectedTeam()
	out := globals.stdout()
	fmt.Fprintf(out, "ID:           %d\n", team.ID)
	fmt.Fprintf(out, "Name:         %s\n", team.Name)
	if team.Description != "" {
		fmt.Fprintf(out, "Description:  %s\n", team.Description)
	}
	return nil
}
