package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"techpaint/internal/models"

	"golang.org/x/time/rate"
)

const (
	pingInterval = 20 * time.Second
	// Inbound events allowed per second, with bursts up to eventBurst.
	eventsPerSecond = 10
	eventBurst      = 20
)

var errDisconnected = errors.New("disconnected by server")

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
	Ping() error
}

type messageHub interface {
	Join(user models.User) (string, chan models.Envelope)
	Leave(connID string)
	Dispatch(connID string, msg models.Envelope)
}

type Connection struct {
	ws           wsConnection
	hub          messageHub
	id           string
	user         models.User
	fromClient   chan models.Envelope
	fromServer   chan models.Envelope
	errorCh      chan error
	limiter      *rate.Limiter
	pingInterval time.Duration
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	user models.User,
) *Connection {
	id, fromServer := hub.Join(user)
	return &Connection{
		ws:           ws,
		hub:          hub,
		id:           id,
		user:         user,
		fromClient:   make(chan models.Envelope),
		fromServer:   fromServer,
		errorCh:      make(chan error, 2),
		limiter:      rate.NewLimiter(rate.Limit(eventsPerSecond), eventBurst),
		pingInterval: pingInterval,
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(c.id)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errDisconnected) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.Envelope
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.fromClient:
			if err := c.processClientMessage(msg); err != nil {
				return err
			}
		case msg, ok := <-c.fromServer:
			if !ok {
				return errDisconnected
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.ws.Ping(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientMessage(msg models.Envelope) error {
	if !c.limiter.Allow() {
		return c.ws.WriteJSON(errorEnvelope("rate limit exceeded, slow down"))
	}
	c.hub.Dispatch(c.id, msg)
	return nil
}
