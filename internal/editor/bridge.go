package editor

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Bridge accepts editor plugin connections and funnels their events into a
// single dispatch goroutine. Plugins may connect and reconnect at will; events
// from all connections are delivered to the handler one at a time, in arrival
// order, which is the serialized-delivery guarantee the tracker relies on.
type Bridge struct {
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	events    chan Event
	done      chan struct{}
	onEvent   func(Event)
	onConnect func(appName string)
}

// NewBridge returns a bridge that invokes onEvent for every decoded editor
// event and onConnect (if non-nil) with the plugin's reported application name
// on each new connection.
func NewBridge(logger *slog.Logger, onEvent func(Event), onConnect func(appName string)) *Bridge {
	return &Bridge{
		logger: logger.With(slog.String("component", "bridge")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// Plugins connect from file:// or vscode-webview origins;
			// the listener is bound to loopback.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		events:    make(chan Event, 256),
		done:      make(chan struct{}),
		onEvent:   onEvent,
		onConnect: onConnect,
	}
}

// Run dispatches queued events until ctx is cancelled. It must be running for
// Handler to make progress; exactly one Run loop may ever be started. When Run
// returns, open read loops shut down and close their connections.
func (b *Bridge) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.onEvent(ev)
		}
	}
}

// Handler returns the HTTP handler that upgrades plugin connections.
// The plugin identifies its host editor via the "app" query parameter.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		app := r.URL.Query().Get("app")
		b.logger.Info("editor connected",
			slog.String("app", app),
			slog.String("remote", r.RemoteAddr))
		if b.onConnect != nil {
			b.onConnect(app)
		}

		go b.readLoop(conn)
	})
}

// readLoop decodes messages from one connection into the shared event channel
// until the connection closes. Undecodable messages are dropped.
func (b *Bridge) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.logger.Info("editor disconnected", slog.String("reason", err.Error()))
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			b.logger.Debug("ignoring malformed event", slog.String("error", err.Error()))
			continue
		}
		select {
		case b.events <- ev:
		case <-b.done:
			// Nothing is draining the channel anymore; a full buffer would
			// block this send forever and pin the connection.
			return
		}
	}
}
