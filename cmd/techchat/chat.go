package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"techpaint/internal/client"
	"techpaint/internal/models"
	"techpaint/internal/session"
	"techpaint/internal/typing"
)

const chatHelp = `Commands: /join <room>, /leave, /typing, /quit. Anything else is sent.`

var chatCmd = &cobra.Command{
	Use:   "chat [room]",
	Short: "Join a chat room",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := requireSession()
		if err != nil {
			return err
		}
		room := "general"
		if len(args) == 1 {
			room = args[0]
		}
		return runRoomChat(cmd.Context(), s, room)
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <email|id>",
	Short: "Private chat with a colleague",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, rest, err := requireSession()
		if err != nil {
			return err
		}
		contact, err := findUser(cmd.Context(), rest, s.User.ID, args[0])
		if err != nil {
			return checkAuth(err)
		}
		return runPrivateChat(cmd.Context(), s, rest, contact)
	},
}

func findUser(ctx context.Context, rest *client.REST, selfID, query string) (models.User, error) {
	users, err := rest.Users(ctx, selfID)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.ID == query || strings.EqualFold(u.Email, query) {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("no colleague matches %q", query)
}

// readLines feeds stdin lines until EOF or ctx ends.
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func printEntry(e client.Entry) {
	fmt.Printf("[%s] %s: %s\n", clock(e.Timestamp), e.FromName, e.Text)
}

func runRoomChat(ctx context.Context, s session.Session, room string) error {
	conn, err := client.Dial(ctx, flagServerURL, s.Token)
	if err != nil {
		return checkAuth(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.JoinRoom(room); err != nil {
		return err
	}

	debounce := typing.New(typing.DefaultIdle, func(t bool) {
		if err := conn.Typing(t); err != nil && !errors.Is(err, client.ErrNotInRoom) {
			log.Debug().Err(err).Msg("typing")
		}
	})
	defer debounce.Stop()

	tl := client.NewTimeline()
	lines := readLines(ctx)
	fmt.Fprintln(os.Stderr, chatHelp)

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-conn.Events():
			if !ok {
				return conn.Err()
			}
			renderRoomEvent(tl, s.User.ID, env)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch {
			case line == "/quit":
				return nil
			case line == "/typing":
				debounce.Keystroke()
			case line == "/leave":
				debounce.Stop()
				if err := conn.LeaveRoom(); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			case strings.HasPrefix(line, "/join "):
				debounce.Stop()
				if err := conn.JoinRoom(strings.TrimPrefix(line, "/join ")); err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				tl = client.NewTimeline()
			default:
				debounce.Stop()
				id, err := conn.Send(line)
				if err != nil {
					if errors.Is(err, client.ErrEmptyMessage) {
						continue
					}
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				if e, ok := tl.AddLocal(id, s.User.ID, s.User.Name, strings.TrimSpace(line)); ok {
					printEntry(e)
				}
			}
		}
	}
}

func renderRoomEvent(tl *client.Timeline, selfID string, env models.Envelope) {
	switch env.Type {
	case models.EventHistory:
		for _, e := range tl.ApplyHistory(env) {
			printEntry(e)
		}
	case models.EventNewMessage:
		if e, ok := tl.Apply(env); ok {
			printEntry(e)
		}
	case models.EventSystem:
		fmt.Printf("* %s\n", env.Text)
	case models.EventRoomUsers:
		fmt.Printf("* online in %s: %s\n", env.Room, strings.Join(env.Users, ", "))
	case models.EventUserTyping:
		if env.From == selfID {
			return
		}
		if env.Typing {
			fmt.Printf("* %s is typing...\n", env.FromName)
		}
	case models.EventLeftRoom:
		fmt.Printf("* you left %s\n", env.Room)
	case models.EventError:
		fmt.Fprintf(os.Stderr, "! %s\n", env.Text)
	}
}

func runPrivateChat(ctx context.Context, s session.Session, rest *client.REST, contact models.User) error {
	history, err := rest.Messages(ctx, contact.ID)
	if err != nil {
		return checkAuth(err)
	}

	names := map[string]string{s.User.ID: s.User.Name, contact.ID: contact.Name}
	tl := client.NewTimeline()
	for _, m := range history {
		if e, ok := tl.Apply(models.PrivateEnvelope(models.EventNewPrivateMessage, m, names[m.From], "")); ok {
			printEntry(e)
		}
	}
	if n, err := rest.MarkRead(ctx, contact.ID); err != nil {
		log.Warn().Err(err).Msg("failed to mark messages read")
	} else if n > 0 {
		log.Debug().Int("count", n).Msg("marked read")
	}

	conn, err := client.Dial(ctx, flagServerURL, s.Token)
	if err != nil {
		return checkAuth(err)
	}
	defer func() { _ = conn.Close() }()
	if err := conn.JoinPrivate(); err != nil {
		return err
	}

	debounce := typing.New(typing.DefaultIdle, func(t bool) {
		if err := conn.TypingPrivate(contact.ID, t); err != nil {
			log.Debug().Err(err).Msg("typing")
		}
	})
	defer debounce.Stop()

	lines := readLines(ctx)
	fmt.Fprintf(os.Stderr, "Chatting with %s. /typing announces typing, /quit leaves.\n", contact.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-conn.Events():
			if !ok {
				return conn.Err()
			}
			switch env.Type {
			case models.EventNewPrivateMessage, models.EventMessageSent:
				if env.From != contact.ID && env.To != contact.ID {
					continue
				}
				if e, ok := tl.Apply(env); ok {
					printEntry(e)
				}
				if env.Type == models.EventNewPrivateMessage {
					if _, err := rest.MarkRead(ctx, contact.ID); err != nil {
						log.Debug().Err(err).Msg("mark read")
					}
				}
			case models.EventUserTypingPrivate:
				if env.From == contact.ID {
					fmt.Printf("* %s is typing...\n", contact.Name)
				}
			case models.EventError:
				fmt.Fprintf(os.Stderr, "! %s\n", env.Text)
			}
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return nil
			}
			if line == "/typing" {
				debounce.Keystroke()
				continue
			}
			debounce.Stop()
			id, err := conn.SendPrivate(contact.ID, line)
			if err != nil {
				if !errors.Is(err, client.ErrEmptyMessage) {
					fmt.Fprintln(os.Stderr, err)
				}
				continue
			}
			if e, ok := tl.AddLocal(id, s.User.ID, s.User.Name, strings.TrimSpace(line)); ok {
				printEntry(e)
			}
		}
	}
}
