package domain

import (
	"encoding/json"
	"time"
)

// ChangeOp definition change feed operation
type ChangeOp string

const (
	//OpInsert row inserted
	OpInsert ChangeOp = "insert"
	//OpUpdate row updated
	OpUpdate ChangeOp = "update"
	//OpDelete row removed (bulk sweeps publish this without payload)
	OpDelete ChangeOp = "delete"
)

// ChangeTable definition table a change event refers to
type ChangeTable string

const (
	//TableConversations conversations table
	TableConversations ChangeTable = "conversations"
	//TableMessages messages table
	TableMessages ChangeTable = "messages"
	//TableParticipants conversation_participants table
	TableParticipants ChangeTable = "conversation_participants"
)

// ChangeEvent one change feed notification. Payload carries the full row
// when the producer has it; consumers fall back to a refetch when it is
// empty or they cannot apply it incrementally.
type ChangeEvent struct {
	Table          ChangeTable     `json:"table"`
	Op             ChangeOp        `json:"op"`
	ConversationID string          `json:"conversation_id"`
	RowID          string          `json:"row_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	At             time.Time       `json:"at"`
}

// ConversationChannel change feed channel scoped to one conversation
func ConversationChannel(conversationID string) string {
	return "conv:" + conversationID
}

// UserChannel change feed channel scoped to one user
func UserChannel(userID string) string {
	return "user:" + userID
}

// MutationOutcome result event for one mutation, emitted on a dedicated
// channel so presentation stays out of the data layer.
type MutationOutcome struct {
	Op       string    `json:"op"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Succeeded report whether the mutation completed
func (m MutationOutcome) Succeeded() bool {
	return m.Error == ""
}
