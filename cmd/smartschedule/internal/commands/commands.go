package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/smartschedule/internal/app"
	"github.com/wolfeidau/smartschedule/internal/gate"
	"github.com/wolfeidau/smartschedule/internal/permissions"
)

type Globals struct {
	Debug     bool
	Version   string
	Server    string
	StateDir  string
	Ephemeral bool
	Timeout   time.Duration

	// Out and In default to the process stdout and stdin.
	Out io.Writer
	In  io.Reader
}

func (g *Globals) stdout() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) stdin() io.Reader {
	if g.In == nil {
		return os.Stdin
	}
	return g.In
}

// App opens the session in the configured state directory.
func (g *Globals) App() (*app.App, error) {
	a, err := app.New(app.Config{
		ServerURL: g.Server,
		StateDir:  g.StateDir,
		Ephemeral: g.Ephemeral,
		Timeout:   g.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return a, nil
}

func requireLogin(a *app.App) error {
	if !a.IsAuthenticated() {
		return fmt.Errorf("not signed in\n\nRun 'smartschedule login <username>' first")
	}
	return nil
}

func requireTeam(a *app.App) error {
	if err := requireLogin(a); err != nil {
		return err
	}
	if a.SelectedTeam() == nil {
		return fmt.Errorf("%w\n\nRun 'smartschedule team list' and 'smartschedule team select <id>'", app.ErrNoTeam)
	}
	return nil
}

func lookupPermissions(names []string) ([]permissions.Permission, error) {
	out := make([]permissions.Permission, 0, len(names))
	for _, name := range names {
		p, ok := permissions.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown permission %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

func outcomeFor(st permissions.State, p permissions.Permission, action bool) gate.Outcome {
	if action {
		return gate.CheckAction(st, p)
	}
	return gate.Check(st, p)
}
