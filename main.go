package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"techpaint/internal/auth"
	"techpaint/internal/commands"
	"techpaint/internal/config"
	"techpaint/internal/http"
	"techpaint/internal/notify"
	"techpaint/internal/storage"
	"techpaint/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, addUser string) error {
	cfg, err := config.Load(addUser != "")
	if err != nil {
		return err
	}

	if addUser != "" {
		return commands.AddUser(addUser, cfg)
	}

	slog.SetDefault(cfg.Logger())

	authConfig := auth.Config{
		Secret:          base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry:     cfg.TokenExpiry,
		CorporateDomain: cfg.CorporateDomain,
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	authService, err := auth.NewAuthService(ctx, authConfig, bbStorage)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.PushEnabled() {
		notifier = notify.NewWebPush(notify.Config{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subscriber: cfg.VAPIDSubscriber,
		}, bbStorage)
		slog.Info("web push notifications enabled")
	}

	hub := ws.NewHub(ws.HubConfig{
		DefaultRoom: cfg.DefaultRoom,
		History:     cfg.RoomHistory,
	}, bbStorage, authService, notifier)

	adminServer := http.NewAdminServer(authService, hub, cfg.AdminAddr)
	apiServer := http.NewAPIServer(authService, hub, bbStorage, cfg.VAPIDPublicKey, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	addUser := flag.String("add-user", "", "E-mail of the user to create (creates user with random password and prints details)")
	genVAPID := flag.Bool("gen-vapid", false, "Print a new VAPID key pair for web push and exit")
	flag.Parse()

	if *genVAPID {
		private, public, err := notify.GenerateKeys()
		if err != nil {
			log.Fatalf("Failed to generate VAPID keys: %v", err)
		}
		fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", public, private)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addUser); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
