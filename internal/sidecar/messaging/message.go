// Package messaging is the trust boundary between extension contexts and
// the session. Every inbound message is checked, dispatched to exactly one
// handler and answered with exactly one Response.
package messaging

import (
	"encoding/json"
	"strings"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
)

// Type tags a message variant.
type Type string

const (
	TypeAuthLogin                 Type = "AUTH_LOGIN"
	TypeAuthLogout                Type = "AUTH_LOGOUT"
	TypeAuthGetSession            Type = "AUTH_GET_SESSION"
	TypeProjectList               Type = "PROJECT_LIST"
	TypeProjectCreate             Type = "PROJECT_CREATE"
	TypeChatSend                  Type = "CHAT_SEND"
	TypeBrowserControlGetSSEToken Type = "BROWSER_CONTROL_GET_SSE_TOKEN"
	TypeBrowserControlSendAction  Type = "BROWSER_CONTROL_SEND_ACTION"
)

// Message is one inbound request. Payload is left raw until the handler
// for Type decodes it.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorBody is the failure half of a Response.
type ErrorBody struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// Response is either {ok: true, data} or {ok: false, error}.
type Response struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

func Success(data any) Response {
	return Response{OK: true, Data: data}
}

func Failure(code domain.Code, message string) Response {
	return Response{Error: &ErrorBody{Code: code, Message: message}}
}

// Sender identifies where a message came from.
type Sender struct {
	// ID is the runtime identity of the sending extension.
	ID string
	// URL of the sending page, if known.
	URL string
	// TabID is set when the sender is a content script running in a tab.
	TabID *int
}

// ExtensionOrigin returns the URL prefix of pages owned by the extension.
func ExtensionOrigin(extensionID string) string {
	return "chrome-extension://" + extensionID + "/"
}

// IsExtensionPage reports whether s is a page served by the extension.
func (s Sender) IsExtensionPage(extensionID string) bool {
	return extensionID != "" && s.URL != "" && strings.HasPrefix(s.URL, ExtensionOrigin(extensionID))
}

// IsContentScript reports whether s runs inside a browser tab.
func (s Sender) IsContentScript() bool {
	return s.TabID != nil
}
