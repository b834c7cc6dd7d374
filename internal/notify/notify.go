// Package notify delivers out-of-band notifications to users who are not
// connected to the real-time channel.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"techpaint/internal/content"
	"techpaint/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Notifier is told about private messages whose recipient is offline.
type Notifier interface {
	NotifyPrivateMessage(ctx context.Context, recipientID string, msg models.PrivateMessage, senderName string) error
}

type Noop struct{}

func (Noop) NotifyPrivateMessage(context.Context, string, models.PrivateMessage, string) error {
	return nil
}

type SubscriptionStore interface {
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(userID, endpoint string) error
}

type Config struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	// TTL is how long the push service keeps an undelivered message, in seconds.
	TTL int
}

type WebPush struct {
	config     Config
	store      SubscriptionStore
	httpClient webpush.HTTPClient
}

func NewWebPush(config Config, store SubscriptionStore) *WebPush {
	if config.TTL == 0 {
		config.TTL = 3600
	}
	return &WebPush{
		config:     config,
		store:      store,
		httpClient: http.DefaultClient,
	}
}

// Payload is the JSON document handed to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	From  string `json:"from"`
	URL   string `json:"url"`
}

// previewLength bounds the message text included in a notification.
const previewLength = 120

func (w *WebPush) NotifyPrivateMessage(ctx context.Context, recipientID string, msg models.PrivateMessage, senderName string) error {
	subs, err := w.store.ListPushSubscriptions(recipientID)
	if err != nil {
		return fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(Payload{
		Title: "New message from " + senderName,
		Body:  content.Clean(msg.Text, previewLength),
		From:  msg.From,
		URL:   "/chat/private",
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		if err := w.send(ctx, recipientID, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebPush) send(ctx context.Context, userID string, sub models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      w.httpClient,
		Subscriber:      w.config.Subscriber,
		VAPIDPublicKey:  w.config.PublicKey,
		VAPIDPrivateKey: w.config.PrivateKey,
		TTL:             w.config.TTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The browser unsubscribed.
		slog.Info("removing expired push subscription", "user_id", userID)
		return w.store.DeletePushSubscription(userID, sub.Endpoint)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service answered %d", resp.StatusCode)
	}
	return nil
}

// GenerateKeys returns a fresh VAPID key pair (private, public).
func GenerateKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
