package domain

import "time"

// SenderType definition message sender kind
type SenderType string

const (
	//SenderUser message sent by an individual user
	SenderUser SenderType = "user"
	//SenderOrganization message sent on behalf of an organization
	SenderOrganization SenderType = "organization"
	//SenderSystem message emitted by the platform itself
	SenderSystem SenderType = "system"
)

// MessageType definition message payload kind
type MessageType string

const (
	//MessageText plain text message
	MessageText MessageType = "text"
	//MessageResourceShare message carrying a resource capability grant
	MessageResourceShare MessageType = "resource_share"
	//MessageLink message carrying a URL with preview
	MessageLink MessageType = "link"
)

// PermissionType definition resource share permission
type PermissionType string

const (
	//PermissionReadOnly read only grant
	PermissionReadOnly PermissionType = "read_only"
	//PermissionReadWrite read and write grant
	PermissionReadWrite PermissionType = "read_write"
)

// ResourceMeta metadata payload for resource_share messages
type ResourceMeta struct {
	ResourceID string         `json:"resource_id"`
	ObjectName string         `json:"object_name,omitempty"`
	Permission PermissionType `json:"permission"`
}

// LinkMeta metadata payload for link messages
type LinkMeta struct {
	URL     string `json:"url"`
	Preview string `json:"preview,omitempty"`
}

// Metadata variant payload; exactly one branch is set, matching MessageType.
type Metadata struct {
	Resource *ResourceMeta `json:"resource,omitempty"`
	Link     *LinkMeta     `json:"link,omitempty"`
}

// Message one message in a conversation. Deletion is soft (deleted_at);
// edits set edited_at and only the original sender may perform either.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderType     SenderType `json:"sender_type"`
	// Exactly one of SenderID / OrganizationSenderID is set for
	// user/organization senders, neither for system.
	SenderID             *string     `json:"sender_id,omitempty"`
	OrganizationSenderID *string     `json:"organization_sender_id,omitempty"`
	Content              string      `json:"content"`
	MessageType          MessageType `json:"message_type"`
	Metadata             Metadata    `json:"metadata"`
	CreatedAt            time.Time   `json:"created_at"`
	// Seq per-conversation monotonic sequence; tie-break for the
	// timestamp pagination cursor.
	Seq       int64      `json:"seq"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	SenderProfile *UserProfile `json:"sender_profile,omitempty"`
}

// Deleted report whether the message is soft-deleted
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// MessageFilter query filter for a message page, newest first
type MessageFilter struct {
	ConversationID string
	Limit          int
	// Before pages backward: rows strictly older than (BeforeDate, BeforeSeq).
	BeforeDate *time.Time
	BeforeSeq  *int64
	AfterDate  *time.Time
}

// ResourceShare capability grant attached to a resource_share message
type ResourceShare struct {
	ID         string         `json:"id"`
	MessageID  string         `json:"message_id"`
	ResourceID string         `json:"resource_id"`
	ObjectName string         `json:"object_name,omitempty"`
	Permission PermissionType `json:"permission"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Expired report whether the grant has lapsed
func (r *ResourceShare) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
