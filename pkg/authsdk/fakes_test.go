package authsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// fakeKeycloak serves the realm token endpoint and records each form posted.
type fakeKeycloak struct {
	*httptest.Server

	mu    sync.Mutex
	forms []url.Values

	// respond writes the token response for a parsed form.
	respond func(w http.ResponseWriter, form url.Values)
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()

	fk := &fakeKeycloak{
		respond: func(w http.ResponseWriter, form url.Values) {
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access-" + form.Get("grant_type"),
				"refresh_token": "refresh-rotated",
				"id_token":      "id-token",
				"token_type":    "Bearer",
				"expires_in":    300,
			})
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/test/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fk.mu.Lock()
		fk.forms = append(fk.forms, r.PostForm)
		respond := fk.respond
		fk.mu.Unlock()
		respond(w, r.PostForm)
	})

	fk.Server = httptest.NewServer(mux)
	t.Cleanup(fk.Close)
	return fk
}

func (fk *fakeKeycloak) client(opts ...Option) *Client {
	return NewClient(Config{
		BaseURL:  fk.URL,
		Realm:    "test",
		ClientID: "extension-client",
	}, append([]Option{WithHTTPClient(fk.Client())}, opts...)...)
}

func (fk *fakeKeycloak) lastForm() url.Values {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	if len(fk.forms) == 0 {
		return nil
	}
	return fk.forms[len(fk.forms)-1]
}

func (fk *fakeKeycloak) calls() int {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	return len(fk.forms)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// scriptedFlow answers Launch with a redirect built from the authorization
// URL it was given.
type scriptedFlow struct {
	redirect string
	answer   func(authURL *url.URL) (string, error)

	seen *url.URL
}

func (f *scriptedFlow) RedirectURL() string { return f.redirect }

func (f *scriptedFlow) Launch(_ context.Context, authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	f.seen = u
	return f.answer(u)
}

// redirectWith echoes the request's state back with extra parameters.
func redirectWith(redirect string, params url.Values) func(*url.URL) (string, error) {
	return func(authURL *url.URL) (string, error) {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		if _, ok := q["state"]; !ok {
			q.Set("state", authURL.Query().Get("state"))
		}
		return redirect + "?" + q.Encode(), nil
	}
}
