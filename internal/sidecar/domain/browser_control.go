package domain

import (
	"slices"
	"time"
)

// BrowserControlAction is an action the backend fans out to connected
// browser-control subscribers.
type BrowserControlAction string

const (
	ActionClick BrowserControlAction = "click"
	ActionPopup BrowserControlAction = "popup"
	ActionClose BrowserControlAction = "close"
)

var browserControlActions = []BrowserControlAction{ActionClick, ActionPopup, ActionClose}

// Valid reports whether a is one of the known actions.
func (a BrowserControlAction) Valid() bool {
	return slices.Contains(browserControlActions, a)
}

// BrowserControlDispatch acknowledges a dispatched action.
type BrowserControlDispatch struct {
	OK           bool                 `json:"ok"`
	Action       BrowserControlAction `json:"action"`
	DispatchedAt time.Time            `json:"dispatched_at"`
}

// SSEToken is handed to UI contexts that open the browser-control event
// stream themselves.
type SSEToken struct {
	AccessToken string `json:"accessToken"`
}
