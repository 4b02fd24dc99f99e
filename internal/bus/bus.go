// Package bus connects the assistant to a websocket hub: session events
// go out, commands from other agents come in.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	KindCommand = "command"
	Broadcast   = "ALL"
)

type Message struct {
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Lang    string `json:"lang,omitempty"`
}

type Config struct {
	URL       string
	Name      string // our address on the hub
	Reconnect time.Duration
	Buffer    int
	OnMessage func(Message)
}

type Bus struct {
	cfg Config
	out chan Message
}

func New(cfg Config) *Bus {
	if cfg.Name == "" {
		cfg.Name = "jarvis"
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 3 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Bus{cfg: cfg, out: make(chan Message, cfg.Buffer)}
}

// Publish queues m for the hub. It never blocks; when the queue is full
// the message is dropped.
func (b *Bus) Publish(m Message) {
	m.From = b.cfg.Name
	select {
	case b.out <- m:
	default:
		log.Debug("bus queue full, dropping", "kind", m.Kind)
	}
}

// Run keeps a connection to the hub open until ctx is done, redialing
// after every failure.
func (b *Bus) Run(ctx context.Context) error {
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if isClosed(err) {
			log.Warn("bus connection closed, reconnecting", "url", b.cfg.URL)
		} else {
			log.Warn("bus connection failed", "url", b.cfg.URL, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.cfg.Reconnect):
		}
	}
}

func (b *Bus) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Info("connected to bus", "url", b.cfg.URL)

	done := make(chan struct{})
	exited := make(chan struct{})
	defer func() {
		close(done)
		<-exited
	}()

	writeErr := make(chan error, 1)
	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				conn.Close()
				return
			case m := <-b.out:
				data, err := json.Marshal(m)
				if err != nil {
					log.Error("bus encode", "err", err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					writeErr <- err
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case werr := <-writeErr:
				return fmt.Errorf("write: %w", werr)
			default:
			}
			return err
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("bus bad message", "msg", string(data), "err", err)
			continue
		}
		if m.To != "" && m.To != b.cfg.Name && m.To != Broadcast {
			continue
		}
		if m.From == b.cfg.Name {
			continue
		}

		log.Debug("bus message", "from", m.From, "kind", m.Kind)
		if b.cfg.OnMessage != nil {
			b.cfg.OnMessage(m)
		}
	}
}

func isClosed(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) || websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
