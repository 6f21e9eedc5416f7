package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/smartschedule/internal/gate"
	"github.com/wolfeidau/smartschedule/internal/permissions"
)

type CanCmd struct {
	Permissions []string `arg:"" help:"Permission names, e.g. ViewSchedules"`
	Action      bool     `help:"Use the action guard, a permission still loading is denied"`
}

func (c *CanCmd) Run(ctx context.Context, globals *Globals) error {
	perms, err := lookupPermissions(c.Permissions)
	if err != nil {
		return err
	}

	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	st := a.State(ctx)

	var denied []string
	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	for _, p := range perms {
		outcome := outcomeFor(st, p, c.Action)
		if outcome != gate.Allow {
			denied = append(denied, p.Name())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name(), p.Scope(), outcome)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if st.Err != nil {
		return fmt.Errorf("permissions unavailable: %w", st.Err)
	}
	if len(denied) > 0 {
		return fmt.Errorf("not granted: %s", strings.Join(denied, ", "))
	}
	return nil
}

type PermissionsCmd struct {
	Watch bool `help:"Print every background refresh until interrupted"`
	JSON  bool `help:"Print JSON"`
}

type permissionsOutput struct {
	Key     string   `json:"key"`
	Granted []string `json:"granted"`
	Error   string   `json:"error,omitempty"`
}

func (c *PermissionsCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	out := globals.stdout()

	st := a.State(ctx)
	if err := c.print(out, st); err != nil {
		return err
	}
	if !c.Watch {
		return st.Err
	}

	sub := a.Watch()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := c.print(out, st); err != nil {
				return err
			}
		}
	}
}

func (c *PermissionsCmd) print(out io.Writer, st permissions.State) error {
	// snapshots for another key grant nothing
	var granted []string
	if st.Err == nil && st.Snapshot != nil && st.Snapshot.Key == st.Key {
		granted = st.Snapshot.Granted()
	}

	if c.JSON {
		o := permissionsOutput{Key: st.Key.String(), Granted: granted}
		if o.Granted == nil {
			o.Granted = []string{}
		}
		if st.Err != nil {
			o.Error = st.Err.Error()
		}
		return json.NewEncoder(out).Encode(o)
	}

	fmt.Fprintf(out, "Key: %s\n", st.Key)
	if st.Err != nil {
		fmt.Fprintf(out, "Error: %v\n", st.Err)
		return nil
	}
	if st.Loading && len(granted) == 0 {
		fmt.Fprintln(out, "Loading...")
		return nil
	}
	for _, name := range granted {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

type RouteCmd struct {
	Path string `arg:"" help:"Console path, e.g. /schedules"`
}

func (c *RouteCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	nav := a.Route(c.Path)
	if nav.Decision == gate.Pending {
		// resolve the permission instead of reporting the transient state
		_ = a.State(ctx)
		nav = a.Route(c.Path)
	}

	out := globals.stdout()
	fmt.Fprintf(out, "%s\t%s", nav.Path, nav.Decision)
	if location := nav.Decision.Location(); location != "" {
		fmt.Fprintf(out, "\t%s", location)
	}
	fmt.Fprintln(out)
	return nil
}
