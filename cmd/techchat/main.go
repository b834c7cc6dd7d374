package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"techpaint/internal/client"
	"techpaint/internal/session"
)

var rootCmd = &cobra.Command{
	Use:           "techchat",
	Short:         "TechPaint chat and project feed from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagServerURL   string
	flagSessionFile string
	flagVerbose     bool
)

func init() {
	defaultServer := os.Getenv("TECHPAINT_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	defaultSession, err := session.DefaultPath()
	if err != nil {
		defaultSession = ".techpaint-session.json"
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server", defaultServer, "server base URL (from env TECHPAINT_SERVER if set)")
	flags.StringVar(&flagSessionFile, "session-file", defaultSession, "where the login session is kept")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	}

	rootCmd.AddCommand(
		loginCmd,
		logoutCmd,
		registerCmd,
		whoamiCmd,
		usersCmd,
		conversationsCmd,
		chatCmd,
		dmCmd,
		projectsCmd,
	)
}

func sessionStore() *session.FileStore {
	return session.NewFileStore(flagSessionFile)
}

// requireSession loads the saved session before anything else runs.
// Without one the command stops and points the user at login.
func requireSession() (session.Session, *client.REST, error) {
	s, err := session.Require(sessionStore())
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return session.Session{}, nil, fmt.Errorf("%w: run `techchat login` first", err)
		}
		return session.Session{}, nil, err
	}
	return s, client.NewREST(flagServerURL, s.Token), nil
}

// checkAuth drops a session the server no longer accepts.
func checkAuth(err error) error {
	if client.IsUnauthorized(err) {
		if clearErr := sessionStore().Clear(); clearErr != nil {
			log.Warn().Err(clearErr).Msg("failed to clear session")
		}
		return fmt.Errorf("%w: the server rejected the session, run `techchat login`", session.ErrNoSession)
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("techchat")
	}
}
