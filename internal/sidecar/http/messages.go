package http

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/messaging"
	"github.com/aussiebroadwan/sidecar/pkg/httpx"
	"github.com/aussiebroadwan/sidecar/pkg/slogx"
)

// TabIDHeader is set by content scripts to the id of their tab.
const TabIDHeader = "X-Sidecar-Tab-Id"

// SecretHeader carries the per-install bridge secret.
const SecretHeader = "X-Sidecar-Secret"

const extensionScheme = "chrome-extension://"

// MessagesHandler answers every message with 200 and a response envelope.
type MessagesHandler struct {
	Messages *messaging.Router
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("failed to read message body", "error", err)
		httpx.WriteJSON(w, http.StatusOK, messaging.Failure(domain.CodeValidation, domain.MsgInvalidPayload))
		return
	}

	// The outcome is delivered even if the caller goes away mid-flight.
	ctx := context.WithoutCancel(r.Context())

	done := make(chan messaging.Response, 1)
	h.Messages.Handle(ctx, raw, SenderFromRequest(r), func(resp messaging.Response) {
		done <- resp
	})

	httpx.WriteJSON(w, http.StatusOK, <-done)
}

// SenderFromRequest derives the sender identity from the request: the
// extension id from Origin, the page URL from Referer and the tab id from
// TabIDHeader.
func SenderFromRequest(r *http.Request) messaging.Sender {
	var s messaging.Sender

	if origin := r.Header.Get("Origin"); strings.HasPrefix(origin, extensionScheme) {
		s.ID = strings.TrimSuffix(strings.TrimPrefix(origin, extensionScheme), "/")
	}

	s.URL = r.Referer()

	if v := strings.TrimSpace(r.Header.Get(TabIDHeader)); v != "" {
		if id, err := strconv.Atoi(v); err == nil && id >= 0 {
			s.TabID = &id
		}
	}

	return s
}

// messageTypeKey keys requests carrying a message of type t with next and
// exempts all others. The body is restored for the handler.
func messageTypeKey(t messaging.Type, next httpx.KeyExtractor) httpx.KeyExtractor {
	return func(r *http.Request) string {
		raw, err := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return ""
		}

		var peek struct {
			Type messaging.Type `json:"type"`
		}
		if json.Unmarshal(raw, &peek) != nil || peek.Type != t {
			return ""
		}
		return string(t) + "|" + next(r)
	}
}

// CORSMiddleware lets pages of the given extension call the bridge. Other
// origins get no CORS headers, so browsers keep their responses opaque.
func CORSMiddleware(extensionID string) httpx.Middleware {
	allowed := strings.TrimSuffix(messaging.ExtensionOrigin(extensionID), "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if extensionID == "" || origin != allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
				w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
					"Content-Type", TabIDHeader, SecretHeader, slogx.RequestIDHeader,
				}, ", "))
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSecret rejects requests whose SecretHeader differs from secret.
// Origin can only be trusted for browser callers; the secret also keeps
// other local processes out. An empty secret disables the check.
func RequireSecret(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		want := []byte(secret)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(SecretHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				slogx.FromContext(r.Context()).Warn("bridge request without valid secret",
					"origin", r.Header.Get("Origin"),
					"remote_addr", r.RemoteAddr,
				)
				httpx.WriteJSON(w, http.StatusUnauthorized,
					messaging.Failure(domain.CodeForbiddenContext, domain.MsgUntrustedSender))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
