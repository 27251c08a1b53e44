package view

import (
	"context"
	"encoding/json"
	"time"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

// ConversationLister the read the conversation list session depends on
type ConversationLister interface {
	ListConversations(ctx context.Context, userID string, organizationID *string) ([]domain.ConversationSummary, error)
}

// ConversationListView live conversation list for one user, ordered by most
// recent activity. Message inserts carrying a payload are merged in place;
// membership and group changes trigger a refetch.
type ConversationListView struct {
	*Session[[]domain.ConversationSummary]
	userID string
}

// OpenConversationList start a conversation list session: subscribe to the
// user's change channel and issue the initial fetch.
func OpenConversationList(
	ctx context.Context,
	lister ConversationLister,
	feed repository.ChangeFeed,
	co *Coalescer,
	timeout time.Duration,
	userID string,
	organizationID *string,
) (*ConversationListView, error) {
	v := &ConversationListView{userID: userID}
	v.Session = NewSession(ctx, timeout, func(ctx context.Context) ([]domain.ConversationSummary, error) {
		return coalesce(co, "conversations:"+userID, func() ([]domain.ConversationSummary, error) {
			return lister.ListConversations(ctx, userID, organizationID)
		})
	})

	if feed != nil {
		if err := feed.Subscribe(v.Context(), domain.UserChannel(userID), v.handle); err != nil {
			v.Close()
			return nil, err
		}
	}

	v.Refetch()
	return v, nil
}

func (v *ConversationListView) handle(event domain.ChangeEvent) {
	if event.Table == domain.TableMessages && event.Op == domain.OpInsert && len(event.Payload) > 0 {
		var msg domain.Message
		if err := json.Unmarshal(event.Payload, &msg); err == nil {
			v.Merge(func(rows []domain.ConversationSummary) ([]domain.ConversationSummary, bool) {
				return mergeLastMessage(rows, &msg, v.userID)
			})
			return
		}
	}

	// Membership, group metadata and bulk changes reshape the list.
	v.Refetch()
}

// mergeLastMessage patch the affected row and float it to the top. Reports
// false when the conversation is not in the list yet, forcing a refetch.
func mergeLastMessage(rows []domain.ConversationSummary, msg *domain.Message, viewerID string) ([]domain.ConversationSummary, bool) {
	idx := -1
	for i := range rows {
		if rows[i].Conversation.ID == msg.ConversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return rows, false
	}

	out := make([]domain.ConversationSummary, len(rows))
	copy(out, rows)

	row := out[idx]
	row.LastMessage = msg
	at := msg.CreatedAt
	row.Conversation.LastMessageAt = &at
	if msg.SenderID == nil || *msg.SenderID != viewerID {
		row.UnreadCount++
	}

	out = append(out[:idx], out[idx+1:]...)
	return append([]domain.ConversationSummary{row}, out...), true
}
