package view

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

// MessagePager the paged message read the message session depends on
type MessagePager interface {
	GetMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error)
}

// MessageView live message page for one conversation, newest first. Inserts
// and edits carrying a payload are merged by id; payload-less events (bulk
// sweeps) trigger a refetch. LoadMore appends strictly older pages and never
// duplicates a row, even when page boundaries share a timestamp.
type MessageView struct {
	*Session[[]domain.Message]
	pager          MessagePager
	co             *Coalescer
	conversationID string
	pageSize       int

	mu      sync.Mutex
	hasMore bool
}

// OpenMessages start a message session for one conversation: subscribe to
// its change channel and fetch the first page.
func OpenMessages(
	ctx context.Context,
	pager MessagePager,
	feed repository.ChangeFeed,
	co *Coalescer,
	timeout time.Duration,
	conversationID string,
	pageSize int,
) (*MessageView, error) {
	v := &MessageView{
		pager:          pager,
		co:             co,
		conversationID: conversationID,
		pageSize:       pageSize,
		hasMore:        true,
	}
	v.Session = NewSession(ctx, timeout, func(ctx context.Context) ([]domain.Message, error) {
		return coalesce(co, "messages:"+conversationID, func() ([]domain.Message, error) {
			return pager.GetMessages(ctx, domain.MessageFilter{
				ConversationID: conversationID,
				Limit:          pageSize,
			})
		})
	})

	if feed != nil {
		if err := feed.Subscribe(v.Context(), domain.ConversationChannel(conversationID), v.handle); err != nil {
			v.Close()
			return nil, err
		}
	}

	v.Refetch()
	return v, nil
}

// HasMore report whether older pages may remain
func (v *MessageView) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMore
}

// LoadMore fetch the page older than the oldest loaded row and append it.
// The cursor pairs the timestamp with the per-conversation sequence so a
// boundary row is never fetched twice.
func (v *MessageView) LoadMore(ctx context.Context) error {
	snap := v.Snapshot()
	if snap.Phase != PhaseReady {
		return fmt.Errorf("message view not ready: %s", snap.Phase)
	}
	if len(snap.Data) == 0 || !v.HasMore() {
		return nil
	}

	oldest := snap.Data[len(snap.Data)-1]
	before := oldest.CreatedAt
	beforeSeq := oldest.Seq
	key := fmt.Sprintf("messages:%s:%d:%d", v.conversationID, before.UnixNano(), beforeSeq)

	page, err := coalesce(v.co, key, func() ([]domain.Message, error) {
		return v.pager.GetMessages(ctx, domain.MessageFilter{
			ConversationID: v.conversationID,
			Limit:          v.pageSize,
			BeforeDate:     &before,
			BeforeSeq:      &beforeSeq,
		})
	})
	if err != nil {
		return err
	}

	if len(page) < v.pageSize {
		v.mu.Lock()
		v.hasMore = false
		v.mu.Unlock()
	}

	v.Merge(func(rows []domain.Message) ([]domain.Message, bool) {
		return appendPage(rows, page), true
	})
	return nil
}

func (v *MessageView) handle(event domain.ChangeEvent) {
	if event.Table != domain.TableMessages {
		return
	}
	if len(event.Payload) == 0 {
		v.Refetch()
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		v.Refetch()
		return
	}

	switch event.Op {
	case domain.OpInsert:
		v.Merge(func(rows []domain.Message) ([]domain.Message, bool) {
			return prependMessage(rows, msg), true
		})
	case domain.OpUpdate:
		v.Merge(func(rows []domain.Message) ([]domain.Message, bool) {
			return replaceMessage(rows, msg), true
		})
	default:
		v.Refetch()
	}
}

func prependMessage(rows []domain.Message, msg domain.Message) []domain.Message {
	for i := range rows {
		if rows[i].ID == msg.ID {
			return rows
		}
	}
	out := make([]domain.Message, 0, len(rows)+1)
	out = append(out, msg)
	return append(out, rows...)
}

func replaceMessage(rows []domain.Message, msg domain.Message) []domain.Message {
	out := make([]domain.Message, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].ID == msg.ID {
			out[i] = msg
			break
		}
	}
	return out
}

func appendPage(rows, page []domain.Message) []domain.Message {
	seen := make(map[string]struct{}, len(rows))
	for _, m := range rows {
		seen[m.ID] = struct{}{}
	}
	out := make([]domain.Message, len(rows), len(rows)+len(page))
	copy(out, rows)
	for _, m := range page {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}
	return out
}
