package domain

// ConversationUnread unread count for one conversation
type ConversationUnread struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
}

// UnreadCount aggregate unread across all conversations for a user.
// Total always equals the sum of the per-conversation counts.
type UnreadCount struct {
	Total          int                  `json:"total"`
	ByConversation []ConversationUnread `json:"by_conversation"`
}

// NewUnreadCount build the aggregate from per-conversation counts
func NewUnreadCount(byConversation []ConversationUnread) UnreadCount {
	total := 0
	for _, c := range byConversation {
		total += c.UnreadCount
	}
	return UnreadCount{Total: total, ByConversation: byConversation}
}
