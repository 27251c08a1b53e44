package domain

// Action websocket request action
type Action string

const (
	// WatchConversations websocket action watch_conversations
	WatchConversations Action = "watch_conversations"
	// WatchMessages websocket action watch_messages
	WatchMessages Action = "watch_messages"
	// WatchParticipants websocket action watch_participants
	WatchParticipants Action = "watch_participants"
	// WatchUnread websocket action watch_unread
	WatchUnread Action = "watch_unread"
	// LoadMore websocket action load_more
	LoadMore Action = "load_more"
	// MarkRead websocket action mark_read
	MarkRead Action = "mark_read"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// StopWatch websocket action stop_watch
	StopWatch Action = "stop_watch"

	// NotifySnapshot websocket push action notify_snapshot
	NotifySnapshot Action = "notify_snapshot"
	// NotifyOutcome websocket push action notify_outcome
	NotifyOutcome Action = "notify_outcome"
)

// WSRequest websocket Request
type WSRequest struct {
	Action         string    `json:"action"`
	ConversationID string    `json:"conversation_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	MessageType    string    `json:"message_type,omitempty"`
	Metadata       *Metadata `json:"metadata,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
