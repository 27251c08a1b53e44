package domain

import "time"

// ConversationType definition conversation type
type ConversationType string

const (
	//ConversationTypePersonal conversation between individual users
	ConversationTypePersonal ConversationType = "personal"
	//ConversationTypeOrganization conversation owned by an organization
	ConversationTypeOrganization ConversationType = "organization"
	//ConversationTypeSystem conversation driven by system messages
	ConversationTypeSystem ConversationType = "system"
)

// ParticipantRole definition participant role
type ParticipantRole string

const (
	//RoleMember regular participant
	RoleMember ParticipantRole = "member"
	//RoleAdmin participant allowed to manage the group
	RoleAdmin ParticipantRole = "admin"
)

// Conversation definition a channel grouping participants and messages.
// A non-group conversation has exactly two active participants.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	IsGroup        bool             `json:"is_group"`
	Name           string           `json:"name,omitempty"`
	Description    string           `json:"description,omitempty"`
	OrganizationID *string          `json:"organization_id,omitempty"`
	// AutoDeleteDays nil means no retention policy.
	AutoDeleteDays *int       `json:"auto_delete_days,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Participant a user's membership record in a conversation. Leaving sets
// left_at; the row persists so message history keeps its attribution.
type Participant struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	// LastReadAt read high-water mark used to compute unread counts.
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`

	Profile *UserProfile `json:"profile,omitempty"`
}

// Active report whether the participant still belongs to the conversation
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// ConversationSummary one row of the conversation list: the conversation
// enriched with active participants, last message and unread count.
type ConversationSummary struct {
	Conversation Conversation  `json:"conversation"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
}

// GroupUpdate fields an admin may change on a group conversation
type GroupUpdate struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	AutoDeleteDays *int    `json:"auto_delete_days,omitempty"`
}
