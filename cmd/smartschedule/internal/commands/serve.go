package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/console"
	"github.com/wolfeidau/smartschedule/internal/telemetry"
)

type ServeCmd struct {
	Listen         string   `help:"Console listen address" default:"127.0.0.1:8420" env:"SMARTSCHEDULE_LISTEN"`
	CORSOrigins    []string `help:"Allowed CORS origins for the JSON API" env:"SMARTSCHEDULE_CORS_ORIGINS"`
	TrustedOrigins []string `help:"Origins allowed to submit console forms cross-origin" env:"SMARTSCHEDULE_TRUSTED_ORIGINS"`
	Tracing        bool     `help:"Export traces and metrics over OTLP" default:"false" env:"SMARTSCHEDULE_TRACING"`
	SampleRatio    float64  `help:"Fraction of traces sampled" default:"1"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	if s.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "smartschedule-console",
			Version:     globals.Version,
			SampleRatio: s.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shut down telemetry")
			}
		}()
	}

	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := console.New(a, console.Config{
		Listen:         s.Listen,
		CORSOrigins:    s.CORSOrigins,
		TrustedOrigins: s.TrustedOrigins,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("server", a.Client.BaseURL()).
		Bool("authenticated", a.IsAuthenticated()).
		Msg("console ready")

	return srv.ListenAndServe(ctx)
}
