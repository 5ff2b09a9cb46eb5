package domain

// ChatReply is the outcome of one chat turn with the agent.
type ChatReply struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
	TaskID    string `json:"taskId"`
}
