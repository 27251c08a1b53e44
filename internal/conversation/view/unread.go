package view

import (
	"context"
	"encoding/json"
	"time"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

// UnreadReader the aggregate unread read the unread session depends on
type UnreadReader interface {
	GetUnreadCount(ctx context.Context, userID string) (domain.UnreadCount, error)
}

// UnreadView live unread counts for one user. New messages from other
// senders increment the affected conversation in place; read-watermark and
// delete changes refetch so the total stays the sum of the parts.
type UnreadView struct {
	*Session[domain.UnreadCount]
	userID string
}

// OpenUnread start an unread session: subscribe to the user's change
// channel and issue the initial fetch.
func OpenUnread(
	ctx context.Context,
	reader UnreadReader,
	feed repository.ChangeFeed,
	co *Coalescer,
	timeout time.Duration,
	userID string,
) (*UnreadView, error) {
	v := &UnreadView{userID: userID}
	v.Session = NewSession(ctx, timeout, func(ctx context.Context) (domain.UnreadCount, error) {
		return coalesce(co, "unread:"+userID, func() (domain.UnreadCount, error) {
			return reader.GetUnreadCount(ctx, userID)
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

func (v *UnreadView) handle(event domain.ChangeEvent) {
	if event.Table == domain.TableMessages && event.Op == domain.OpInsert && len(event.Payload) > 0 {
		var msg domain.Message
		if err := json.Unmarshal(event.Payload, &msg); err == nil {
			if msg.SenderID != nil && *msg.SenderID == v.userID {
				return
			}
			v.Merge(func(c domain.UnreadCount) (domain.UnreadCount, bool) {
				return incrementUnread(c, msg.ConversationID), true
			})
			return
		}
	}
	if event.Table == domain.TableConversations {
		return
	}

	// Mark-read watermarks, deletes and bulk sweeps all shrink counts in
	// ways the event does not describe.
	v.Refetch()
}

func incrementUnread(c domain.UnreadCount, conversationID string) domain.UnreadCount {
	by := make([]domain.ConversationUnread, len(c.ByConversation))
	copy(by, c.ByConversation)

	found := false
	for i := range by {
		if by[i].ConversationID == conversationID {
			by[i].UnreadCount++
			found = true
			break
		}
	}
	if !found {
		by = append(by, domain.ConversationUnread{ConversationID: conversationID, UnreadCount: 1})
	}
	return domain.NewUnreadCount(by)
}
