// Package ipc is the control channel between jarvis-ctl and the daemon:
// one JSON request and one JSON response per unix socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/jarvis.sock"

const (
	CmdTrigger   = "trigger"
	CmdSay       = "say"
	CmdSpeak     = "speak"
	CmdLang      = "lang"
	CmdStatus    = "status"
	CmdStop      = "stop"
	CmdFile      = "file"
	CmdConfigGet = "config-get"
	CmdConfigSet = "config-set"
	CmdHistory   = "history"
	CmdClear     = "clear"
	CmdModels    = "models"
	CmdPing      = "ping"
)

type Request struct {
	Cmd   string `json:"cmd"`
	Text  string `json:"text,omitempty"`
	Lang  string `json:"lang,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

type Response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Text   string          `json:"text,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}

func OK(text string) Response { return Response{OK: true, Text: text} }

func Fail(err error) Response { return Response{Error: err.Error()} }

// WithStatus marshals v into the status field.
func (r Response) WithStatus(v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		return Fail(fmt.Errorf("encode status: %w", err))
	}
	r.Status = b
	return r
}

type Handler func(ctx context.Context, req Request) Response

type Server struct {
	Path    string
	Handler Handler
	Timeout time.Duration // per connection, covers handling
}

// ListenAndServe accepts connections until ctx is done, then removes the
// socket file and waits for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	path := s.Path
	if path == "" {
		path = DefaultSocketPath
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	log.Debug("ipc listening", "path", path)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		os.Remove(path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("ipc accept", "err", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn, timeout)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, timeout time.Duration) {
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.SetDeadline(time.Now().Add(timeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debug("ipc bad request", "err", err)
		json.NewEncoder(conn).Encode(Fail(fmt.Errorf("bad request: %w", err)))
		return
	}

	log.Debug("ipc request", "cmd", req.Cmd)

	resp := s.Handler(ctx, req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debug("ipc write response", "err", err)
	}
}

// Send delivers req to the daemon listening on path and waits for the
// response.
func Send(ctx context.Context, path string, req Request) (Response, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("daemon not running: %w", err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
