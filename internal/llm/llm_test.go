package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	c, err := New(Config{
		APIKey:   "sk-or-test",
		BaseURL:  server.URL,
		Model:    "test/model",
		SiteURL:  "https://jarvis.local",
		SiteName: "JARVIS",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_NoKey(t *testing.T) {
	if _, err := New(Config{APIKey: "  "}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestChat(t *testing.T) {
	var req chatRequest
	var referer, title, auth string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "gen-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test/model",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Olá, senhor.  "}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`)
	})

	got, err := c.Chat(t.Context(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "oi"},
		{Role: RoleAssistant, Content: "olá"},
		{Role: RoleUser, Content: "tudo bem?"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Olá, senhor." {
		t.Fatalf("content = %q", got)
	}

	if req.Model != "test/model" || req.MaxTokens != DefaultMaxTokens || req.Temperature != DefaultTemperature {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Messages) != 4 || req.Messages[0].Role != "system" || req.Messages[2].Role != "assistant" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if referer != "https://jarvis.local" || title != "JARVIS" || auth != "Bearer sk-or-test" {
		t.Fatalf("headers referer=%q title=%q auth=%q", referer, title, auth)
	}
}

func TestChat_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})

	if _, err := c.Chat(t.Context(), []Message{{Role: RoleUser, Content: "hi"}}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestChat_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"no such model","code":400}}`)
	})

	err := c.Ping(t.Context())
	if err == nil || errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"id":"anthropic/claude-3-sonnet","object":"model","created":1,"owned_by":"anthropic"},
			{"id":"openai/gpt-4o","object":"model","created":1,"owned_by":"openai"}
		]}`)
	})

	ids, err := c.Models(t.Context())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(ids) != 2 || ids[0] != "anthropic/claude-3-sonnet" {
		t.Fatalf("ids = %v", ids)
	}
}
