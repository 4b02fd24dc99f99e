package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func socketPath(t *testing.T) string {
	t.Helper()
	// unix socket paths are limited to ~108 bytes; t.TempDir can exceed it
	dir, err := os.MkdirTemp("", "jv")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "j.sock")
}

func serve(t *testing.T, h Handler) (string, func()) {
	t.Helper()
	path := socketPath(t)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{Path: path, Handler: h, Timeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if c, err := net.Dial("unix", path); err == nil {
			c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	return path, func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	reqs := make(chan Request, 3)
	path, stop := serve(t, func(_ context.Context, req Request) Response {
		reqs <- req
		switch req.Cmd {
		case CmdStatus:
			return OK("").WithStatus(map[string]string{"state": "idle"})
		case CmdSay:
			return OK("queued")
		default:
			return Fail(errors.New("unknown command"))
		}
	})
	defer stop()

	resp, err := Send(t.Context(), path, Request{Cmd: CmdSay, Text: "que horas são", Lang: "pt-BR"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !resp.OK || resp.Text != "queued" {
		t.Fatalf("resp = %+v", resp)
	}
	if got := <-reqs; got.Text != "que horas são" || got.Lang != "pt-BR" {
		t.Fatalf("request = %+v", got)
	}

	resp, err = Send(t.Context(), path, Request{Cmd: CmdStatus})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var status map[string]string
	if err := json.Unmarshal(resp.Status, &status); err != nil || status["state"] != "idle" {
		t.Fatalf("status = %s (%v)", resp.Status, err)
	}

	resp, err = Send(t.Context(), path, Request{Cmd: "bogus"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.OK || resp.Error != "unknown command" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestBadRequest(t *testing.T) {
	path, stop := serve(t, func(context.Context, Request) Response {
		t.Error("handler must not run")
		return OK("")
	})
	defer stop()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte("not json\n"))

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || resp.Error == "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestShutdownRemovesSocket(t *testing.T) {
	path, stop := serve(t, func(context.Context, Request) Response { return OK("") })
	stop()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket still present: %v", err)
	}
}

func TestSend_NoDaemon(t *testing.T) {
	if _, err := Send(t.Context(), socketPath(t), Request{Cmd: CmdPing}); err == nil {
		t.Fatal("expected error")
	}
}
