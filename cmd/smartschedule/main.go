package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/smartschedule/cmd/smartschedule/internal/commands"
	"github.com/wolfeidau/smartschedule/internal/config"
	"github.com/wolfeidau/smartschedule/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Server    string          `help:"SmartSchedule API URL" default:"http://localhost:5000" env:"SMARTSCHEDULE_SERVER"`
		StateDir  string          `help:"Directory holding the session and response cache" type:"path" env:"SMARTSCHEDULE_STATE_DIR"`
		Ephemeral bool            `help:"Keep the session in memory only" env:"SMARTSCHEDULE_EPHEMERAL"`
		Timeout   time.Duration   `help:"Backend request timeout" default:"30s" env:"SMARTSCHEDULE_TIMEOUT"`
		Debug     bool            `help:"Enable debug mode." env:"SMARTSCHEDULE_DEBUG"`
		Config    kong.ConfigFlag `help:"Load flags from a YAML file"`
		Version   kong.VersionFlag

		Login       commands.LoginCmd       `cmd:"" help:"Sign in to SmartSchedule"`
		Logout      commands.LogoutCmd      `cmd:"" help:"Sign out and clear the local session"`
		Whoami      commands.WhoamiCmd      `cmd:"" help:"Show the signed in user and team"`
		Team        commands.TeamCmd        `cmd:"" help:"Manage the selected team"`
		Can         commands.CanCmd         `cmd:"" help:"Check permissions in the selected team"`
		Permissions commands.PermissionsCmd `cmd:"" help:"Show the permission snapshot of the selected team"`
		Route       commands.RouteCmd       `cmd:"" help:"Show the navigation decision for a console path"`
		Records     commands.RecordsCmd     `cmd:"" help:"Read backend records"`
		Invites     commands.InvitesCmd     `cmd:"" help:"List and accept team invites"`
		Serve       commands.ServeCmd       `cmd:"" help:"Run the local admin console"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("smartschedule"),
		kong.Description("SmartSchedule command line client and local console."),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(config.YAML, config.DefaultPath),
		kong.BindTo(ctx, (*context.Context)(nil)))

	logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{
		Debug:     cli.Debug,
		Version:   version,
		Server:    cli.Server,
		StateDir:  cli.StateDir,
		Ephemeral: cli.Ephemeral,
		Timeout:   cli.Timeout,
	})
	cmd.FatalIfErrorf(err)
}
