package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List colleagues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, rest, err := requireSession()
		if err != nil {
			return err
		}
		users, err := rest.Users(cmd.Context(), s.User.ID)
		if err != nil {
			return checkAuth(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAREA\tE-MAIL\tID")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Name, u.Area, u.Email, u.ID)
		}
		return w.Flush()
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"inbox"},
	Short:   "List private conversations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rest, err := requireSession()
		if err != nil {
			return err
		}
		conversations, err := rest.Conversations(cmd.Context())
		if err != nil {
			return checkAuth(err)
		}
		if len(conversations) == 0 {
			fmt.Println("No conversations yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAREA\tUNREAD\tLAST\tWHEN")
		for _, c := range conversations {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.Name, c.Area, c.Unread, truncate(c.LastMessage, 40), clock(c.LastAt))
		}
		return w.Flush()
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clock(ms int64) string {
	if ms == 0 {
		return "--:--"
	}
	return time.UnixMilli(ms).Local().Format("15:04")
}
