package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
)

// RecordsCmd reads backend records.
type RecordsCmd struct {
	List RecordsListCmd `cmd:"" help:"List records of a resource"`
}

type RecordsListCmd struct {
	Resource string `arg:"" help:"Resource: teams, users, assignments, schedules, assigned or invites"`
}

func (c *RecordsListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	records, err := a.Client.List(ctx, c.Resource)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(globals.stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// InvitesCmd lists and accepts invites.
type InvitesCmd struct {
	List   InvitesListCmd   `cmd:"" help:"List your invites"`
	Accept InvitesAcceptCmd `cmd:"" help:"Accept an invite"`
}

type InvitesListCmd struct{}

func (c *InvitesListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	invites, err := a.Client.Invites.List(ctx)
	if err != nil {
		return err
	}

	out := globals.stdout()
	if len(invites) == 0 {
		fmt.Fprintln(out, "No invites.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTEAM\tFROM\tSTATUS")
	for _, inv := range invites {
		team := inv.TeamName
		if team == "" {
			team = fmt.Sprint(inv.TeamID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", inv.ID, team, inv.InvitedBy, inv.Status)
	}
	return w.Flush()
}

type InvitesAcceptCmd struct {
	ID int `arg:"" help:"Invite ID"`
}

func (c *InvitesAcceptCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.AcceptInvite(ctx, c.ID); err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "Accepted invite %d\n", c.ID)
	return nil
}
