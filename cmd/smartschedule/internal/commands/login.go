package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/session"
	"golang.org/x/term"
)

type LoginCmd struct {
	Username     string `arg:"" help:"SmartSchedule username"`
	Password     string `help:"Password, prefer --password-file" env:"SMARTSCHEDULE_PASSWORD"`
	PasswordFile string `help:"Read the password from a file, - reads standard input"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password, err := l.readPassword(globals)
	if err != nil {
		return err
	}

	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	out := globals.stdout()

	err = a.Login(ctx, l.Username, password)

	var profileErr *session.ProfileFetchError
	var authErr *session.AuthError
	switch {
	case err == nil:
		fmt.Fprintf(out, "Logged in as %s\n", a.Session.User().DisplayName())
	case errors.As(err, &profileErr):
		log.Warn().Err(err).Msg("profile unavailable")
		fmt.Fprintf(out, "Logged in as %s (profile unavailable)\n", l.Username)
	case errors.As(err, &authErr):
		return errors.New(authErr.Message)
	default:
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Select a team to continue:")
	fmt.Fprintln(out, "  smartschedule team list")
	fmt.Fprintln(out, "  smartschedule team select <id>")

	return nil
}

func (l *LoginCmd) readPassword(globals *Globals) (string, error) {
	switch {
	case l.Password != "":
		return l.Password, nil
	case l.PasswordFile == "-":
		return readLine(globals.stdin())
	case l.PasswordFile != "":
		data, err := os.ReadFile(l.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		password := strings.TrimRight(string(data), "\r\n")
		if password == "" {
			return "", fmt.Errorf("password file %s is empty", l.PasswordFile)
		}
		return password, nil
	}

	// interactive prompt with echo disabled
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for interactive password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on standard input")
	}
	return line, nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	a.Logout()
	fmt.Fprintln(globals.stdout(), "Logged out.")
	return nil
}

type WhoamiCmd struct{}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.App()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := requireLogin(a); err != nil {
		return err
	}

	out := globals.stdout()
	st := a.Session.Snapshot()

	if st.User != nil {
		fmt.Fprintf(out, "User:     %s\n", st.User.DisplayName())
		if st.User.Email != "" {
			fmt.Fprintf(out, "Email:    %s\n", st.User.Email)
		}
		if st.User.Role != "" {
			fmt.Fprintf(out, "Role:     %s\n", st.User.Role)
		}
	} else {
		fmt.Fprintln(out, "User:     (profile not loaded)")
	}

	if st.Team != nil {
		fmt.Fprintf(out, "Team:     %s (%d)\n", st.Team.Name, st.Team.ID)
	} else {
		fmt.Fprintln(out, "Team:     (none selected)")
	}

	fmt.Fprintf(out, "Server:   %s\n", a.Client.BaseURL())

	if claims, err := a.Session.Claims(); err == nil {
		if claims.Subject != "" {
			fmt.Fprintf(out, "Subject:  %s\n", claims.Subject)
		}
		if !claims.ExpiresAt.IsZero() {
			status := ""
			if claims.Expired() {
				status = " (expired)"
			}
			fmt.Fprintf(out, "Expires:  %s%s\n", claims.ExpiresAt.Format("2006-01-02 15:04:05"), status)
		}
	}

	return nil
}
