package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultChatHandler      = "sidepanel_chat"
	DefaultChatPollInterval = 300 * time.Millisecond
	DefaultChatPollLimit    = 40

	agentCardPath = ".well-known/agent.json"
)

// Task states that end polling without a reply.
var terminalTaskStates = map[string]bool{
	"failed":        true,
	"canceled":      true,
	"rejected":      true,
	"auth-required": true,
	"unknown":       true,
}

// ChatService talks to the chat agent over A2A JSON-RPC through the gateway.
type ChatService struct {
	gateway  *Gateway
	handler  string
	interval time.Duration
	limit    int
	newID    func() string
}

// ChatOption configures a ChatService.
type ChatOption func(*ChatService)

// WithPollInterval sets the minimum spacing between task polls.
func WithPollInterval(d time.Duration) ChatOption {
	return func(s *ChatService) { s.interval = d }
}

// WithPollLimit sets how many times a task is polled before giving up.
func WithPollLimit(n int) ChatOption {
	return func(s *ChatService) { s.limit = n }
}

func NewChatService(gateway *Gateway, handler string, opts ...ChatOption) *ChatService {
	if handler == "" {
		handler = DefaultChatHandler
	}
	s := &ChatService{
		gateway:  gateway,
		handler:  handler,
		interval: DefaultChatPollInterval,
		limit:    DefaultChatPollLimit,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type agentCard struct {
	URL string `json:"url"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type a2aMessage struct {
	Role  string     `json:"role"`
	Parts []textPart `json:"parts"`
}

type a2aTask struct {
	ID     string `json:"id"`
	Status struct {
		State string `json:"state"`
	} `json:"status"`
	Artifacts []struct {
		Parts []textPart `json:"parts"`
	} `json:"artifacts"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse treats "error": null like an absent error.
type rpcResponse struct {
	Result *a2aTask  `json:"result"`
	Error  *rpcError `json:"error"`
}

// Send posts one user message to the agent and waits for the task to
// complete. Text and session id are trimmed and must not be empty.
func (s *ChatService) Send(ctx context.Context, text, sessionID string) (*domain.ChatReply, error) {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return nil, domain.NewError(domain.CodeValidation, "Message text is required.")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.NewError(domain.CodeValidation, "Chat session id is required.")
	}

	endpoint, err := s.endpoint(ctx)
	if err != nil {
		return nil, err
	}

	task, err := s.call(ctx, endpoint, "tasks/send", map[string]any{
		"id":        s.newID(),
		"sessionId": sessionID,
		"message": a2aMessage{
			Role:  "user",
			Parts: []textPart{{Type: "text", Text: prompt}},
		},
	})
	if err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, domain.NewError(domain.CodeNetwork, "A2A response is missing task id.")
	}

	done, err := s.poll(ctx, endpoint, task.ID)
	if err != nil {
		return nil, err
	}

	reply := lastText(done)
	if reply == "" {
		return nil, domain.NewError(domain.CodeNetwork, "Failed to parse the chat reply.")
	}

	return &domain.ChatReply{Reply: reply, SessionID: sessionID, TaskID: task.ID}, nil
}

// endpoint reads the agent card and returns its JSON-RPC URL, resolved
// against the card's own location.
func (s *ChatService) endpoint(ctx context.Context) (string, error) {
	cardURL := fmt.Sprintf("%s/chat/a2a/%s/%s", s.gateway.BaseURL(), url.PathEscape(s.handler), agentCardPath)

	raw, err := s.gateway.RequestJSON(ctx, Request{Method: http.MethodGet, Path: cardURL})
	if err != nil {
		return "", err
	}

	card, err := DecodeJSON[agentCard](raw)
	if err != nil {
		return "", err
	}
	if card.URL == "" {
		return "", domain.NewError(domain.CodeNetwork, "A2A agent card is missing url.")
	}

	base, err := url.Parse(cardURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse agent card URL: %w", err)
	}
	ref, err := url.Parse(card.URL)
	if err != nil {
		return "", domain.WrapError(domain.CodeNetwork, "A2A agent card has an invalid url.", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *ChatService) call(ctx context.Context, endpoint, method string, params any) (*a2aTask, error) {
	raw, err := s.gateway.RequestJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   endpoint,
		Body: rpcRequest{
			JSONRPC: "2.0",
			ID:      s.newID(),
			Method:  method,
			Params:  params,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := DecodeJSON[rpcResponse](raw)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		msg := resp.Error.Message
		if msg == "" {
			msg = "A2A request failed."
		}
		return nil, domain.NewError(domain.CodeNetwork, msg)
	}
	if resp.Result == nil {
		return nil, domain.NewError(domain.CodeNetwork, "A2A response is missing result payload.")
	}
	return resp.Result, nil
}

// poll fetches the task until it completes, fails, or the attempt limit is
// reached. Polls start at least one interval apart.
func (s *ChatService) poll(ctx context.Context, endpoint, taskID string) (*a2aTask, error) {
	log := slogx.FromContext(ctx)
	pacer := rate.NewLimiter(rate.Every(s.interval), 1)

	for attempt := 1; attempt <= s.limit; attempt++ {
		if err := pacer.Wait(ctx); err != nil {
			return nil, domain.WrapError(domain.CodeNetwork, "A2A response timed out.", err)
		}

		task, err := s.call(ctx, endpoint, "tasks/get", map[string]string{"id": taskID})
		if err != nil {
			return nil, err
		}

		state := task.Status.State
		if state == "completed" {
			log.Debug("chat task completed", "task_id", taskID, "attempts", attempt)
			return task, nil
		}
		if terminalTaskStates[state] {
			return nil, domain.NewError(domain.CodeNetwork, fmt.Sprintf("A2A task finished with state: %s.", state))
		}
	}

	log.Warn("chat task did not complete", "task_id", taskID, "attempts", s.limit)
	return nil, domain.NewError(domain.CodeNetwork, "A2A response timed out.")
}

// lastText returns the last non-blank text part across all artifacts.
func lastText(task *a2aTask) string {
	for i := len(task.Artifacts) - 1; i >= 0; i-- {
		parts := task.Artifacts[i].Parts
		for j := len(parts) - 1; j >= 0; j-- {
			if parts[j].Type != "text" {
				continue
			}
			if text := strings.TrimSpace(parts[j].Text); text != "" {
				return text
			}
		}
	}
	return ""
}
