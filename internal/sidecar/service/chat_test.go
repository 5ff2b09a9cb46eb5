package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/stretchr/testify/require"
)

// fakeAgent serves an agent card and a JSON-RPC endpoint. states is consumed
// one entry per tasks/get call; the last entry repeats.
type fakeAgent struct {
	t *testing.T

	mu        sync.Mutex
	cardURL   string
	states    []string
	artifacts []map[string]any
	sendReply map[string]any
	rpcError  map[string]any
	sent      []map[string]any
	gets      int
}

func (a *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch r.URL.Path {
	case "/api/chat/a2a/sidepanel_chat/.well-known/agent.json":
		writeJSON(w, http.StatusOK, map[string]any{"name": "chat", "url": a.cardURL})
	case "/api/chat/a2a/sidepanel_chat/":
		var req struct {
			ID     string         `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		require.NoError(a.t, json.NewDecoder(r.Body).Decode(&req))

		if a.rpcError != nil {
			writeJSON(w, http.StatusOK, map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": a.rpcError})
			return
		}

		var result map[string]any
		switch req.Method {
		case "tasks/send":
			a.sent = append(a.sent, req.Params)
			result = a.sendReply
			if result == nil {
				result = map[string]any{"id": "task-1", "status": map[string]string{"state": "submitted"}}
			}
		case "tasks/get":
			require.Equal(a.t, "task-1", req.Params["id"])
			state := a.states[min(a.gets, len(a.states)-1)]
			a.gets++
			result = map[string]any{"id": "task-1", "status": map[string]string{"state": state}}
			if state == "completed" {
				result["artifacts"] = a.artifacts
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result, "error": nil})
	default:
		http.NotFound(w, r)
	}
}

func newChatFixture(t *testing.T, agent *fakeAgent, opts ...ChatOption) *ChatService {
	t.Helper()
	agent.t = t
	if agent.cardURL == "" {
		agent.cardURL = "/api/chat/a2a/sidepanel_chat/"
	}

	backend := httptest.NewServer(agent)
	t.Cleanup(backend.Close)

	opts = append([]ChatOption{WithPollInterval(0)}, opts...)
	return NewChatService(newTestGateway(t, backend.URL+"/api", &stubTokens{token: "tok"}), "", opts...)
}

func TestChatSend(t *testing.T) {
	ctx := context.Background()

	t.Run("polls until completed and returns the last text", func(t *testing.T) {
		agent := &fakeAgent{
			states: []string{"working", "working", "completed"},
			artifacts: []map[string]any{
				{"parts": []map[string]any{{"type": "text", "text": "first"}}},
				{"parts": []map[string]any{
					{"type": "text", "text": " answer "},
					{"type": "text", "text": "   "},
					{"type": "data", "text": "ignored"},
				}},
			},
		}
		chat := newChatFixture(t, agent)

		reply, err := chat.Send(ctx, "  hello ", " s-1 ")
		require.NoError(t, err)
		require.Equal(t, &domain.ChatReply{Reply: "answer", SessionID: "s-1", TaskID: "task-1"}, reply)
		require.Equal(t, 3, agent.gets)

		require.Len(t, agent.sent, 1)
		require.Equal(t, "s-1", agent.sent[0]["sessionId"])
		require.NotEmpty(t, agent.sent[0]["id"])
		require.Equal(t, map[string]any{
			"role":  "user",
			"parts": []any{map[string]any{"type": "text", "text": "hello"}},
		}, agent.sent[0]["message"])
	})

	for _, state := range []string{"failed", "canceled", "rejected", "auth-required", "unknown"} {
		t.Run("terminal state "+state, func(t *testing.T) {
			agent := &fakeAgent{states: []string{"working", state}}
			_, err := newChatFixture(t, agent).Send(ctx, "hi", "s-1")
			requireCode(t, err, domain.CodeNetwork, "A2A task finished with state: "+state+".")
			require.Equal(t, 2, agent.gets)
		})
	}

	t.Run("gives up after the poll limit", func(t *testing.T) {
		agent := &fakeAgent{states: []string{"working"}}
		_, err := newChatFixture(t, agent, WithPollLimit(3)).Send(ctx, "hi", "s-1")
		requireCode(t, err, domain.CodeNetwork, "A2A response timed out.")
		require.Equal(t, 3, agent.gets)
	})

	t.Run("completed task without text", func(t *testing.T) {
		agent := &fakeAgent{states: []string{"completed"}}
		_, err := newChatFixture(t, agent).Send(ctx, "hi", "s-1")
		requireCode(t, err, domain.CodeNetwork, "Failed to parse the chat reply.")
	})

	t.Run("json-rpc error", func(t *testing.T) {
		agent := &fakeAgent{rpcError: map[string]any{"code": -32000, "message": "agent offline"}}
		_, err := newChatFixture(t, agent).Send(ctx, "hi", "s-1")
		requireCode(t, err, domain.CodeNetwork, "agent offline")
	})

	t.Run("missing task id", func(t *testing.T) {
		agent := &fakeAgent{sendReply: map[string]any{"status": map[string]string{"state": "submitted"}}}
		_, err := newChatFixture(t, agent).Send(ctx, "hi", "s-1")
		requireCode(t, err, domain.CodeNetwork, "A2A response is missing task id.")
	})

	t.Run("agent card pointing elsewhere is refused", func(t *testing.T) {
		agent := &fakeAgent{cardURL: "https://agent.example.com/rpc"}
		_, err := newChatFixture(t, agent).Send(ctx, "hi", "s-1")
		requireCode(t, err, domain.CodeValidation, "")
		require.Empty(t, agent.sent)
	})

	t.Run("blank input is rejected", func(t *testing.T) {
		chat := newChatFixture(t, &fakeAgent{})

		_, err := chat.Send(ctx, "  ", "s-1")
		requireCode(t, err, domain.CodeValidation, "Message text is required.")

		_, err = chat.Send(ctx, "hi", "")
		requireCode(t, err, domain.CodeValidation, "Chat session id is required.")
	})
}
