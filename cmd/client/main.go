// Command client is a headless second-brain client: it signs in, resumes a
// stored session and prints the user's databases.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"second-brain/internal/app"
	"second-brain/internal/config"
	"second-brain/internal/domain"
	"second-brain/internal/errors"
	"second-brain/internal/logger"
	"second-brain/internal/session"

	"github.com/rs/zerolog"
)

type options struct {
	email    string
	password string
	logout   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.email, "email", "", "sign in with this email")
	flag.StringVar(&opts.password, "password", "", "password for -email")
	flag.BoolVar(&opts.logout, "logout", false, "sign out and clear the stored session")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error().Err(err).Msg(errors.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, log zerolog.Logger) error {
	nav := session.NavigatorFunc(func(_ context.Context, target string) {
		log.Info().Str("target", target).Msg("navigate")
	})

	client, err := app.New(ctx, cfg, nav, log)
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.logout {
		client.Session.Logout(ctx)
		return nil
	}

	if opts.email != "" {
		if _, err := client.Session.Login(ctx, domain.Credentials{Email: opts.email, Password: opts.password}); err != nil {
			return err
		}
	}

	user, err := client.Session.CurrentUser(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("user", user.Email).Str("role", string(user.Role)).Msg("signed in")

	dbs, err := client.Databases.List(ctx)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		log.Info().
			Str("id", db.ID).
			Str("name", db.Name).
			Int("properties", len(db.Properties)).
			Int("views", len(db.Views)).
			Msg("database")
	}
	return nil
}
