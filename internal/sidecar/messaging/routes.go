package messaging

import (
	"context"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
)

// Session is what the auth routes need from the session manager.
type Session interface {
	Login(ctx context.Context) (domain.SessionView, error)
	Logout(ctx context.Context)
	SessionView(ctx context.Context) domain.SessionView
}

type Projects interface {
	List(ctx context.Context) ([]domain.Project, error)
	Create(ctx context.Context, in domain.CreateProject) (*domain.Project, error)
}

type Chat interface {
	Send(ctx context.Context, text, sessionID string) (*domain.ChatReply, error)
}

type BrowserControl interface {
	SSEToken(ctx context.Context) (*domain.SSEToken, error)
	SendAction(ctx context.Context, action domain.BrowserControlAction) (*domain.BrowserControlDispatch, error)
}

// RegisterAuthRoutes registers login, logout and session queries. Login is
// further restricted to senders accepted by r.IsLoginAllowed.
func RegisterAuthRoutes(r *Router, session Session) {
	r.Register(TypeAuthLogin, AnyPayload, func(ctx context.Context, _ Message, sender Sender) (any, error) {
		if !r.IsLoginAllowed(sender) {
			return nil, domain.NewError(domain.CodeForbiddenContext, msgLoginNotAllowed)
		}
		return session.Login(ctx)
	})

	r.Register(TypeAuthLogout, AnyPayload, func(ctx context.Context, _ Message, _ Sender) (any, error) {
		session.Logout(ctx)
		return map[string]bool{"ok": true}, nil
	})

	r.Register(TypeAuthGetSession, AnyPayload, func(ctx context.Context, _ Message, _ Sender) (any, error) {
		return session.SessionView(ctx), nil
	})
}

func RegisterProjectRoutes(r *Router, projects Projects) {
	r.Register(TypeProjectList, AnyPayload, func(ctx context.Context, _ Message, _ Sender) (any, error) {
		return projects.List(ctx)
	})

	r.Register(TypeProjectCreate, ValidProjectCreate, func(ctx context.Context, msg Message, _ Sender) (any, error) {
		in, err := decodePayload[domain.CreateProject](msg)
		if err != nil {
			return nil, err
		}
		return projects.Create(ctx, in)
	})
}

func RegisterChatRoutes(r *Router, chat Chat) {
	r.Register(TypeChatSend, ValidChatSend, func(ctx context.Context, msg Message, _ Sender) (any, error) {
		in, err := decodePayload[struct {
			Text      string `json:"text"`
			SessionID string `json:"sessionId"`
		}](msg)
		if err != nil {
			return nil, err
		}
		return chat.Send(ctx, in.Text, in.SessionID)
	})
}

func RegisterBrowserControlRoutes(r *Router, bc BrowserControl) {
	r.Register(TypeBrowserControlGetSSEToken, AnyPayload, func(ctx context.Context, _ Message, _ Sender) (any, error) {
		return bc.SSEToken(ctx)
	})

	r.Register(TypeBrowserControlSendAction, ValidBrowserControlAction, func(ctx context.Context, msg Message, _ Sender) (any, error) {
		in, err := decodePayload[struct {
			Action domain.BrowserControlAction `json:"action"`
		}](msg)
		if err != nil {
			return nil, err
		}
		return bc.SendAction(ctx, in.Action)
	})
}
