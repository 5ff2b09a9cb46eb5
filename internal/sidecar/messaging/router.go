package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
)

const msgLoginNotAllowed = "Login is only allowed from extension pages or content scripts."

// Validator accepts or rejects a message of its registered type, payload
// included. Validators must not have side effects.
type Validator func(msg Message) bool

// Handler serves one message type. Returning a *domain.Error yields a
// failure with its code; any other error is reported as NETWORK.
type Handler func(ctx context.Context, msg Message, sender Sender) (any, error)

// SessionClearer is called when a handler reports AUTH_REQUIRED.
type SessionClearer interface {
	ClearSession(ctx context.Context)
}

type route struct {
	validate Validator
	handle   Handler
}

// Router maps message types to validators and handlers.
type Router struct {
	extensionID string
	session     SessionClearer
	routes      map[Type]route
}

// NewRouter creates a router that only trusts messages from extensionID.
func NewRouter(extensionID string, session SessionClearer) *Router {
	return &Router{
		extensionID: extensionID,
		session:     session,
		routes:      make(map[Type]route),
	}
}

// Register adds a route. It panics if t is already registered.
func (r *Router) Register(t Type, validate Validator, handle Handler) {
	if _, exists := r.routes[t]; exists {
		panic(fmt.Sprintf("messaging: duplicate route for %s", t))
	}
	r.routes[t] = route{validate: validate, handle: handle}
}

// IsTrusted reports whether the sender is the extension itself.
func (r *Router) IsTrusted(sender Sender) bool {
	return r.extensionID != "" && sender.ID == r.extensionID
}

// IsLoginAllowed reports whether sender may start an interactive login: it
// must be an extension page or a content script.
func (r *Router) IsLoginAllowed(sender Sender) bool {
	return sender.IsExtensionPage(r.extensionID) || sender.IsContentScript()
}

// Handle dispatches raw on its own goroutine and calls respond exactly once
// with the outcome.
func (r *Router) Handle(ctx context.Context, raw json.RawMessage, sender Sender, respond func(Response)) {
	go func() {
		respond(r.Dispatch(ctx, raw, sender))
	}()
}

// Dispatch checks the sender, validates raw and runs its handler. It never
// panics and always returns a Response.
func (r *Router) Dispatch(ctx context.Context, raw json.RawMessage, sender Sender) (resp Response) {
	start := time.Now()
	log := slogx.FromContext(ctx)

	if !r.IsTrusted(sender) {
		log.Warn("message from untrusted sender rejected", "sender_id", sender.ID, "sender_url", sender.URL)
		return Failure(domain.CodeForbiddenContext, domain.MsgUntrustedSender)
	}

	msg, rt, ok := r.parse(raw)
	if !ok {
		log.Debug("invalid message rejected")
		return Failure(domain.CodeValidation, domain.MsgInvalidPayload)
	}

	log = log.With("message_type", msg.Type)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("message handler panicked", "panic", rec)
			resp = Failure(domain.CodeNetwork, domain.MsgRequestFailed)
		}
		log.Debug("message handled",
			"ok", resp.OK,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	data, err := rt.handle(slogx.WithContext(ctx, log), msg, sender)
	if err == nil {
		return Success(data)
	}

	derr, ok := domain.AsError(err)
	if !ok {
		log.Error("message handler failed", "error", err)
		return Failure(domain.CodeNetwork, domain.MsgRequestFailed)
	}

	if derr.Code == domain.CodeAuthRequired {
		r.session.ClearSession(ctx)
	}
	log.Info("message handler returned failure", "code", derr.Code, "error", err)
	return Failure(derr.Code, derr.Message)
}

// parse accepts only a JSON object whose "type" is a registered string and
// whose registered validator accepts it.
func (r *Router) parse(raw json.RawMessage) (Message, route, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Message{}, route{}, false
	}

	var t string
	if !isString(fields["type"]) || json.Unmarshal(fields["type"], &t) != nil {
		return Message{}, route{}, false
	}

	rt, ok := r.routes[Type(t)]
	if !ok {
		return Message{}, route{}, false
	}

	msg := Message{Type: Type(t), Payload: fields["payload"]}
	if rt.validate != nil && !rt.validate(msg) {
		return Message{}, route{}, false
	}
	return msg, rt, true
}

func isString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}
