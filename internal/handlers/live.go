package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/buzzbuddies/backend/internal/auth"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
	"github.com/buzzbuddies/backend/internal/notify"
)

// Frame types sent on a live session.
const (
	FrameFriendRequests = "friend_requests"
	FramePendingCount   = "pending_count"
	FrameFriends        = "friends"
	FrameBuzz           = "buzz"
)

const (
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 5 * time.Second
)

// Frame is one message pushed to a live session.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// LiveHandler streams a user's inbox, badge count, friend list and buzzes over a WebSocket.
// Every listener belongs to the connection and stops when it closes.
type LiveHandler struct {
	Requests FriendRequests
	Graph    FriendGraph
	Buzzes   Buzzer

	OriginPatterns []string
	PingInterval   time.Duration
	// Done, when closed, ends every open session.
	Done <-chan struct{}
}

// Handle implements GET /api/v1/live.
func (h LiveHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		respondError(ctx, w, models.ErrNoSession)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		logging.FromContext(ctx).Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, span := logging.StartSpan(ctx, "live_session")
	ctx = conn.CloseRead(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.Done != nil {
		go func() {
			select {
			case <-h.Done:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	logging.FromContext(ctx).Info("live session opened")
	err = h.serve(ctx, conn, userID)
	span.End(err)

	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "live session failed")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (h LiveHandler) serve(ctx context.Context, conn *websocket.Conn, userID string) error {
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan Frame)

	if h.Requests != nil {
		inbox, err := h.Requests.Subscribe(gctx, userID)
		if err != nil {
			return err
		}
		counts, err := h.Requests.PendingCount(gctx, userID)
		if err != nil {
			return err
		}
		g.Go(func() error { return pump(gctx, inbox, FrameFriendRequests, frames) })
		g.Go(func() error { return pump(gctx, counts, FramePendingCount, frames) })
	}

	if h.Graph != nil {
		friends, err := h.Graph.ListFriends(gctx, userID)
		if err != nil {
			return err
		}
		g.Go(func() error { return pump(gctx, friends, FrameFriends, frames) })
	}

	if h.Buzzes != nil {
		deliver := notify.DelivererFunc(func(ctx context.Context, n models.Notification) error {
			select {
			case frames <- Frame{Type: FrameBuzz, Data: n}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		g.Go(func() error { return h.Buzzes.Run(gctx, userID, deliver) })
	}

	g.Go(func() error { return h.write(gctx, conn, frames) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// write is the only goroutine touching conn for writes.
func (h LiveHandler) write(ctx context.Context, conn *websocket.Conn, frames <-chan Frame) error {
	interval := h.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-frames:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, f)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func pump[T any](ctx context.Context, stream <-chan T, kind string, frames chan<- Frame) error {
	for v := range stream {
		select {
		case frames <- Frame{Type: kind, Data: v}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
