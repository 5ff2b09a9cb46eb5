package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// WebAuthFlow is the interactive step of the login: show the authorization
// URL to the user and return the URL the provider redirected back to.
type WebAuthFlow interface {
	// RedirectURL is the redirect URI registered with the provider.
	RedirectURL() string

	// Launch blocks until the redirect arrives, the user gives up, or ctx
	// ends.
	Launch(ctx context.Context, authURL string) (string, error)
}

const (
	// DefaultCallbackPort is the loopback port the callback server binds.
	DefaultCallbackPort = 3000

	// DefaultCallbackTimeout bounds how long Launch waits for the redirect.
	DefaultCallbackTimeout = 5 * time.Minute
)

// ErrCallbackTimeout is returned when no redirect arrives in time.
var ErrCallbackTimeout = errors.New("timed out waiting for login callback")

// LoopbackFlow receives the redirect on a one-shot HTTP server bound to
// 127.0.0.1 and opens the authorization URL in the system browser.
type LoopbackFlow struct {
	Port    int
	Timeout time.Duration

	// Open shows the authorization URL; OpenBrowser when nil.
	Open func(url string) error

	Logger *slog.Logger
}

var _ WebAuthFlow = (*LoopbackFlow)(nil)

func (f *LoopbackFlow) port() int {
	if f.Port == 0 {
		return DefaultCallbackPort
	}
	return f.Port
}

func (f *LoopbackFlow) RedirectURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", f.port())
}

func (f *LoopbackFlow) Launch(ctx context.Context, authURL string) (string, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	open := f.Open
	if open == nil {
		open = OpenBrowser
	}

	addr := fmt.Sprintf("127.0.0.1:%d", f.port())
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	resultCh := make(chan string, 1)
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		handled := false
		once.Do(func() {
			handled = true
			resultCh <- "http://" + addr + r.URL.RequestURI()
		})
		if !handled {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = w.Write([]byte(callbackPage))
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := open(authURL); err != nil {
		logger.Warn("could not open browser, open the login URL manually", "url", authURL, "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case u := <-resultCh:
		return u, nil
	case err := <-serveErr:
		return "", fmt.Errorf("callback server failed: %w", err)
	case <-timer.C:
		return "", ErrCallbackTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

const callbackPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Signed in</title></head>
<body><p>Login complete. You can close this window.</p></body></html>
`
