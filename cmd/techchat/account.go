package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"techpaint/internal/auth"
	"techpaint/internal/client"
	"techpaint/internal/session"
)

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// valueOrPrompt returns the flag value, asking for it when empty.
func valueOrPrompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return prompt(label)
}

var (
	flagEmail    string
	flagPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := valueOrPrompt(flagEmail, "E-mail")
		if err != nil {
			return err
		}
		password, err := valueOrPrompt(flagPassword, "Password")
		if err != nil {
			return err
		}

		rest := client.NewREST(flagServerURL, "")
		resp, err := rest.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}

		if err := sessionStore().Save(session.Session{
			Token:       resp.Token,
			TokenExpiry: resp.TokenExpiry,
			User:        *resp.User,
		}); err != nil {
			return err
		}
		log.Debug().Str("session_file", flagSessionFile).Msg("session saved")
		fmt.Printf("Welcome, %s (%s)\n", resp.User.Name, resp.User.Area)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		if err := rest.Logoff(cmd.Context()); err != nil {
			log.Warn().Err(err).Msg("server logoff failed")
		}
		if err := sessionStore().Clear(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var (
	flagFirstName string
	flagLastName  string
	flagArea      string
	flagGitHub    string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account (two steps)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rest := client.NewREST(flagServerURL, "")

		var step auth.RegistrationStep
		var err error
		if step.FirstName, err = valueOrPrompt(flagFirstName, "First name"); err != nil {
			return err
		}
		if step.LastName, err = valueOrPrompt(flagLastName, "Last name"); err != nil {
			return err
		}
		if step.Area, err = valueOrPrompt(flagArea, "Area"); err != nil {
			return err
		}
		draft, err := rest.StartRegistration(cmd.Context(), step)
		if err != nil {
			return err
		}

		req := auth.RegistrationRequest{DraftToken: draft, GitHub: flagGitHub}
		if req.Email, err = valueOrPrompt(flagEmail, "Corporate e-mail"); err != nil {
			return err
		}
		if req.Password, err = valueOrPrompt(flagPassword, "Password"); err != nil {
			return err
		}
		user, err := rest.Register(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Printf("Account created for %s <%s>. Run `techchat login` to start.\n", user.Name, user.Email)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		user, err := rest.Me(cmd.Context())
		if err != nil {
			return checkAuth(err)
		}
		fmt.Printf("%s <%s>\nArea: %s\nID: %s\n", user.Name, user.Email, user.Area, user.ID)
		if user.GitHub != "" {
			fmt.Printf("GitHub: %s\n", user.GitHub)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&flagEmail, "email", "", "e-mail address")
		c.Flags().StringVar(&flagPassword, "password", "", "password (prompted when empty)")
	}
	registerCmd.Flags().StringVar(&flagFirstName, "first-name", "", "first name")
	registerCmd.Flags().StringVar(&flagLastName, "last-name", "", "last name")
	registerCmd.Flags().StringVar(&flagArea, "area", "", "work area")
	registerCmd.Flags().StringVar(&flagGitHub, "github", "", "GitHub username (optional)")
}
