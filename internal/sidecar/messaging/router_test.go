package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/stretchr/testify/require"
)

const testExtensionID = "abcdefghijklmnop"

type fakeSession struct {
	view     domain.SessionView
	loginErr error

	logins  atomic.Int32
	logouts atomic.Int32
	clears  atomic.Int32
}

func (f *fakeSession) Login(context.Context) (domain.SessionView, error) {
	f.logins.Add(1)
	return f.view, f.loginErr
}
func (f *fakeSession) Logout(context.Context)                         { f.logouts.Add(1) }
func (f *fakeSession) SessionView(context.Context) domain.SessionView { return f.view }
func (f *fakeSession) ClearSession(context.Context)                   { f.clears.Add(1) }

type fakeProjects struct {
	created []domain.CreateProject
	err     error
}

func (f *fakeProjects) List(context.Context) ([]domain.Project, error) {
	return []domain.Project{{ID: "p1", Name: "Alpha"}}, f.err
}

func (f *fakeProjects) Create(_ context.Context, in domain.CreateProject) (*domain.Project, error) {
	f.created = append(f.created, in)
	return &domain.Project{ID: "p2", Name: in.Name, Description: in.Description}, f.err
}

type fakeChat struct{ calls atomic.Int32 }

func (f *fakeChat) Send(_ context.Context, text, sessionID string) (*domain.ChatReply, error) {
	f.calls.Add(1)
	return &domain.ChatReply{Reply: "echo: " + text, SessionID: sessionID, TaskID: "t1"}, nil
}

type fakeBrowserControl struct{ actions []domain.BrowserControlAction }

func (f *fakeBrowserControl) SSEToken(context.Context) (*domain.SSEToken, error) {
	return &domain.SSEToken{AccessToken: "tok"}, nil
}

func (f *fakeBrowserControl) SendAction(_ context.Context, a domain.BrowserControlAction) (*domain.BrowserControlDispatch, error) {
	f.actions = append(f.actions, a)
	return &domain.BrowserControlDispatch{OK: true, Action: a}, nil
}

type fixture struct {
	router   *Router
	session  *fakeSession
	projects *fakeProjects
	chat     *fakeChat
	bc       *fakeBrowserControl
}

func newFixture() *fixture {
	f := &fixture{
		session:  &fakeSession{view: domain.SessionView{IsAuthenticated: true, User: &domain.User{Subject: "u1", DisplayName: "alice"}}},
		projects: &fakeProjects{},
		chat:     &fakeChat{},
		bc:       &fakeBrowserControl{},
	}
	f.router = NewRouter(testExtensionID, f.session)
	RegisterAuthRoutes(f.router, f.session)
	RegisterProjectRoutes(f.router, f.projects)
	RegisterChatRoutes(f.router, f.chat)
	RegisterBrowserControlRoutes(f.router, f.bc)
	return f
}

var extensionPage = Sender{ID: testExtensionID, URL: ExtensionOrigin(testExtensionID) + "sidepanel.html"}

func dispatch(f *fixture, raw string, sender Sender) Response {
	return f.router.Dispatch(context.Background(), json.RawMessage(raw), sender)
}

func requireFailure(t *testing.T, resp Response, code domain.Code, message string) {
	t.Helper()
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	require.Equal(t, code, resp.Error.Code)
	if message != "" {
		require.Equal(t, message, resp.Error.Message)
	}
}

func TestDispatchRejectsUntrustedSenders(t *testing.T) {
	f := newFixture()

	senders := map[string]Sender{
		"other extension": {ID: "zzzzzzzzzzzzzzzz", URL: "chrome-extension://zzzzzzzzzzzzzzzz/x.html"},
		"web page":        {URL: "https://evil.example/"},
		"anonymous":       {},
	}
	types := []Type{
		TypeAuthLogin, TypeAuthLogout, TypeAuthGetSession,
		TypeProjectList, TypeProjectCreate, TypeChatSend,
		TypeBrowserControlGetSSEToken, TypeBrowserControlSendAction,
	}

	for name, sender := range senders {
		for _, typ := range types {
			t.Run(name+"/"+string(typ), func(t *testing.T) {
				resp := dispatch(f, `{"type":"`+string(typ)+`"}`, sender)
				requireFailure(t, resp, domain.CodeForbiddenContext, "Untrusted sender.")
			})
		}
		t.Run(name+"/garbage", func(t *testing.T) {
			requireFailure(t, dispatch(f, `garbage`, sender), domain.CodeForbiddenContext, "")
		})
	}

	require.Zero(t, f.session.logins.Load())
	require.Zero(t, f.session.logouts.Load())
	require.Zero(t, f.chat.calls.Load())
	require.Empty(t, f.projects.created)
}

func TestDispatchRejectsInvalidMessages(t *testing.T) {
	f := newFixture()

	invalid := map[string]string{
		"not json":                      `{`,
		"array":                         `[{"type":"AUTH_LOGOUT"}]`,
		"null":                          `null`,
		"string":                        `"AUTH_LOGOUT"`,
		"missing type":                  `{"payload":{}}`,
		"numeric type":                  `{"type":42}`,
		"unregistered type":             `{"type":"AUTH_DELETE_EVERYTHING"}`,
		"type case mismatch":            `{"type":"auth_logout"}`,
		"project without payload":       `{"type":"PROJECT_CREATE"}`,
		"project numeric name":          `{"type":"PROJECT_CREATE","payload":{"name":1}}`,
		"project null description":      `{"type":"PROJECT_CREATE","payload":{"name":"a","description":null}}`,
		"project numeric description":   `{"type":"PROJECT_CREATE","payload":{"name":"a","description":5}}`,
		"chat missing session":          `{"type":"CHAT_SEND","payload":{"text":"hi"}}`,
		"chat array payload":            `{"type":"CHAT_SEND","payload":["hi","s"]}`,
		"browser control unknown":       `{"type":"BROWSER_CONTROL_SEND_ACTION","payload":{"action":"scroll"}}`,
		"browser control missing value": `{"type":"BROWSER_CONTROL_SEND_ACTION","payload":{}}`,
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			requireFailure(t, dispatch(f, raw, extensionPage), domain.CodeValidation, "Invalid message payload.")
		})
	}

	require.Zero(t, f.session.logouts.Load())
	require.Zero(t, f.chat.calls.Load())
	require.Empty(t, f.projects.created)
	require.Empty(t, f.bc.actions)
}

func TestDispatchRoutes(t *testing.T) {
	f := newFixture()

	t.Run("session view", func(t *testing.T) {
		resp := dispatch(f, `{"type":"AUTH_GET_SESSION"}`, extensionPage)
		require.True(t, resp.OK)
		require.Equal(t, f.session.view, resp.Data)
	})

	t.Run("payload-less types ignore payload", func(t *testing.T) {
		resp := dispatch(f, `{"type":"PROJECT_LIST","payload":{"unexpected":true}}`, extensionPage)
		require.True(t, resp.OK)
	})

	t.Run("logout", func(t *testing.T) {
		resp := dispatch(f, `{"type":"AUTH_LOGOUT"}`, extensionPage)
		require.True(t, resp.OK)
		require.Equal(t, map[string]bool{"ok": true}, resp.Data)
		require.EqualValues(t, 1, f.session.logouts.Load())
	})

	t.Run("project create", func(t *testing.T) {
		resp := dispatch(f, `{"type":"PROJECT_CREATE","payload":{"name":"Beta","description":"d"}}`, extensionPage)
		require.True(t, resp.OK)
		require.Len(t, f.projects.created, 1)
		require.Equal(t, "Beta", f.projects.created[0].Name)
		require.Equal(t, "d", *f.projects.created[0].Description)
	})

	t.Run("chat send", func(t *testing.T) {
		resp := dispatch(f, `{"type":"CHAT_SEND","payload":{"text":"hi","sessionId":"s1"}}`, extensionPage)
		require.True(t, resp.OK)
		require.Equal(t, &domain.ChatReply{Reply: "echo: hi", SessionID: "s1", TaskID: "t1"}, resp.Data)
	})

	t.Run("browser control", func(t *testing.T) {
		resp := dispatch(f, `{"type":"BROWSER_CONTROL_SEND_ACTION","payload":{"action":"close"}}`, extensionPage)
		require.True(t, resp.OK)
		require.Equal(t, []domain.BrowserControlAction{domain.ActionClose}, f.bc.actions)

		resp = dispatch(f, `{"type":"BROWSER_CONTROL_GET_SSE_TOKEN"}`, extensionPage)
		require.True(t, resp.OK)
		require.Equal(t, &domain.SSEToken{AccessToken: "tok"}, resp.Data)
	})
}

func TestLoginSenderGate(t *testing.T) {
	tab := 7
	tests := []struct {
		name    string
		sender  Sender
		allowed bool
	}{
		{"extension page", extensionPage, true},
		{"content script", Sender{ID: testExtensionID, URL: "https://app.example/page", TabID: &tab}, true},
		{"background without url", Sender{ID: testExtensionID}, false},
		{"web url without tab", Sender{ID: testExtensionID, URL: "https://app.example/"}, false},
		{"other extension page", Sender{ID: testExtensionID, URL: "chrome-extension://other/x.html"}, false},
		{"origin prefix without slash", Sender{ID: testExtensionID, URL: "chrome-extension://" + testExtensionID + "evil/"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			resp := dispatch(f, `{"type":"AUTH_LOGIN"}`, tt.sender)
			if tt.allowed {
				require.True(t, resp.OK)
				require.EqualValues(t, 1, f.session.logins.Load())
				return
			}
			requireFailure(t, resp, domain.CodeForbiddenContext,
				"Login is only allowed from extension pages or content scripts.")
			require.Zero(t, f.session.logins.Load())
		})
	}
}

func TestDispatchErrorMapping(t *testing.T) {
	t.Run("auth required clears the session", func(t *testing.T) {
		f := newFixture()
		f.projects.err = domain.NewError(domain.CodeAuthRequired, domain.MsgSessionExpired)

		resp := dispatch(f, `{"type":"PROJECT_LIST"}`, extensionPage)
		requireFailure(t, resp, domain.CodeAuthRequired, domain.MsgSessionExpired)
		require.EqualValues(t, 1, f.session.clears.Load())
	})

	t.Run("typed errors keep their code", func(t *testing.T) {
		f := newFixture()
		f.session.loginErr = domain.NewError(domain.CodeAuthFailed, "Access denied by user.")

		resp := dispatch(f, `{"type":"AUTH_LOGIN"}`, extensionPage)
		requireFailure(t, resp, domain.CodeAuthFailed, "Access denied by user.")
		require.Zero(t, f.session.clears.Load())
	})

	t.Run("wrapped typed errors are recognised", func(t *testing.T) {
		f := newFixture()
		f.projects.err = errors.Join(errors.New("context"), domain.NewError(domain.CodeForbidden, "nope"))

		requireFailure(t, dispatch(f, `{"type":"PROJECT_LIST"}`, extensionPage), domain.CodeForbidden, "nope")
	})

	t.Run("untyped errors become network failures", func(t *testing.T) {
		f := newFixture()
		f.projects.err = errors.New("dial tcp: connection refused")

		requireFailure(t, dispatch(f, `{"type":"PROJECT_LIST"}`, extensionPage), domain.CodeNetwork, "Request failed.")
	})

	t.Run("panics become network failures", func(t *testing.T) {
		r := NewRouter(testExtensionID, &fakeSession{})
		r.Register("BOOM", AnyPayload, func(context.Context, Message, Sender) (any, error) {
			panic("handler bug")
		})

		resp := r.Dispatch(context.Background(), json.RawMessage(`{"type":"BOOM"}`), extensionPage)
		requireFailure(t, resp, domain.CodeNetwork, "Request failed.")
	})
}

func TestHandleRespondsOnce(t *testing.T) {
	r := NewRouter(testExtensionID, &fakeSession{})
	release := make(chan struct{})
	r.Register("SLOW", AnyPayload, func(context.Context, Message, Sender) (any, error) {
		<-release
		return "done", nil
	})

	responses := make(chan Response, 2)
	r.Handle(context.Background(), json.RawMessage(`{"type":"SLOW"}`), extensionPage, func(resp Response) {
		responses <- resp
	})

	select {
	case <-responses:
		t.Fatal("responded before the handler finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	resp := <-responses
	require.Equal(t, Success("done"), resp)

	select {
	case extra := <-responses:
		t.Fatalf("unexpected second response: %+v", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRouter(testExtensionID, &fakeSession{})
	r.Register(TypeAuthLogout, AnyPayload, func(context.Context, Message, Sender) (any, error) { return nil, nil })
	require.Panics(t, func() {
		r.Register(TypeAuthLogout, AnyPayload, func(context.Context, Message, Sender) (any, error) { return nil, nil })
	})
}

func TestEmptyExtensionIDTrustsNobody(t *testing.T) {
	r := NewRouter("", &fakeSession{})
	RegisterAuthRoutes(r, &fakeSession{})

	resp := r.Dispatch(context.Background(), json.RawMessage(`{"type":"AUTH_GET_SESSION"}`), Sender{})
	requireFailure(t, resp, domain.CodeForbiddenContext, "")
}

func TestResponseJSON(t *testing.T) {
	ok, err := json.Marshal(Success(map[string]bool{"ok": true}))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true,"data":{"ok":true}}`, string(ok))

	fail, err := json.Marshal(Failure(domain.CodeValidation, "Invalid message payload."))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":false,"error":{"code":"VALIDATION","message":"Invalid message payload."}}`, string(fail))
}
