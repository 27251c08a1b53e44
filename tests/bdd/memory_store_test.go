package bdd

import (
	"context"
	"sort"
	"sync"
	"time"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

// memoryStore backs the BDD scenarios with an in-process copy of the
// relational schema. It implements the repository interfaces the use cases
// depend on, matching their contracts (ErrNotFound, soft deletes, seq).
type memoryStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	participants  map[string][]*domain.Participant
	messages      map[string][]*domain.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: map[string]*domain.Conversation{},
		participants:  map[string][]*domain.Participant{},
		messages:      map[string][]*domain.Message{},
	}
}

func (s *memoryStore) Create(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conv
	s.conversations[conv.ID] = &c
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *conv
	return &c, nil
}

func (s *memoryStore) FindDirectBetween(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conv := range s.conversations {
		if conv.IsGroup {
			continue
		}
		if s.isActive(id, userA) && s.isActive(id, userB) {
			c := *conv
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) UpdateGroup(_ context.Context, conversationID string, upd domain.GroupUpdate) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok || !conv.IsGroup {
		return nil, repository.ErrNotFound
	}
	if upd.Name != nil {
		conv.Name = *upd.Name
	}
	if upd.Description != nil {
		conv.Description = *upd.Description
	}
	if upd.AutoDeleteDays != nil {
		conv.AutoDeleteDays = upd.AutoDeleteDays
	}
	conv.UpdatedAt = time.Now().UTC()
	c := *conv
	return &c, nil
}

func (s *memoryStore) TouchLastMessage(_ context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.LastMessageAt = &at
	}
	return nil
}

func (s *memoryStore) ListForUser(_ context.Context, userID string, organizationID *string) ([]domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Conversation
	for id, conv := range s.conversations {
		if !s.isActive(id, userID) {
			continue
		}
		if organizationID != nil && (conv.OrganizationID == nil || *conv.OrganizationID != *organizationID) {
			continue
		}
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].LastMessageAt, out[j].LastMessageAt
		if li == nil {
			return false
		}
		if lj == nil {
			return true
		}
		return li.After(*lj)
	})
	return out, nil
}

func (s *memoryStore) Add(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.participants[p.ConversationID] = append(s.participants[p.ConversationID], &cp)
	return nil
}

func (s *memoryStore) ListActive(_ context.Context, conversationID string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Participant
	for _, p := range s.participants[conversationID] {
		if p.LeftAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memoryStore) FindActive(_ context.Context, conversationID, userID string) (*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID && p.LeftAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) CountActive(_ context.Context, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.participants[conversationID] {
		if p.LeftAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Remove(_ context.Context, conversationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID && p.LeftAt == nil {
			t := at
			p.LeftAt = &t
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memoryStore) MarkRead(_ context.Context, conversationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID && p.LeftAt == nil {
			t := at
			p.LastReadAt = &t
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memoryStore) Insert(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxSeq int64
	for _, m := range s.messages[msg.ConversationID] {
		if m.Seq > maxSeq {
			maxSeq = m.Seq
		}
	}
	msg.Seq = maxSeq + 1
	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	return nil
}

func (s *memoryStore) ListPage(_ context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append([]*domain.Message{}, s.messages[filter.ConversationID]...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].Seq > rows[j].Seq
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	// Soft-deleted rows come back with deleted_at set, same as the SQL
	// store; readers decide how to render them.
	var out []domain.Message
	for _, m := range rows {
		if filter.BeforeDate != nil {
			seq := int64(0)
			if filter.BeforeSeq != nil {
				seq = *filter.BeforeSeq
			}
			if m.CreatedAt.After(*filter.BeforeDate) ||
				(m.CreatedAt.Equal(*filter.BeforeDate) && m.Seq >= seq) {
				continue
			}
		}
		if filter.AfterDate != nil && !m.CreatedAt.After(*filter.AfterDate) {
			continue
		}
		out = append(out, *m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) LastMessage(_ context.Context, conversationID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *domain.Message
	for _, m := range s.messages[conversationID] {
		if m.DeletedAt != nil {
			continue
		}
		if last == nil || m.CreatedAt.After(last.CreatedAt) ||
			(m.CreatedAt.Equal(last.CreatedAt) && m.Seq > last.Seq) {
			last = m
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	cp := *last
	return &cp, nil
}

func (s *memoryStore) findMessage(messageID string) *domain.Message {
	for _, rows := range s.messages {
		for _, m := range rows {
			if m.ID == messageID {
				return m
			}
		}
	}
	return nil
}

func (s *memoryStore) FindMessageByID(_ context.Context, messageID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(messageID)
	if m == nil {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memoryStore) Edit(_ context.Context, messageID, senderID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(messageID)
	if m == nil || m.DeletedAt != nil || m.SenderID == nil || *m.SenderID != senderID {
		return nil, repository.ErrNotFound
	}
	now := time.Now().UTC()
	m.Content = content
	m.EditedAt = &now
	cp := *m
	return &cp, nil
}

func (s *memoryStore) SoftDelete(_ context.Context, messageID, senderID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findMessage(messageID)
	if m == nil || m.DeletedAt != nil || m.SenderID == nil || *m.SenderID != senderID {
		return nil, repository.ErrNotFound
	}
	now := time.Now().UTC()
	m.DeletedAt = &now
	cp := *m
	return &cp, nil
}

func (s *memoryStore) UnreadByConversation(_ context.Context, userID string) ([]domain.ConversationUnread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ConversationUnread
	for convID, rows := range s.messages {
		var watermark *time.Time
		active := false
		for _, p := range s.participants[convID] {
			if p.UserID == userID && p.LeftAt == nil {
				watermark = p.LastReadAt
				active = true
				break
			}
		}
		if !active {
			continue
		}

		n := 0
		for _, m := range rows {
			if m.DeletedAt != nil {
				continue
			}
			if m.SenderID != nil && *m.SenderID == userID {
				continue
			}
			if watermark == nil || m.CreatedAt.After(*watermark) {
				n++
			}
		}
		if n > 0 {
			out = append(out, domain.ConversationUnread{ConversationID: convID, UnreadCount: n})
		}
	}
	return out, nil
}

func (s *memoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for convID, rows := range s.messages {
		conv := s.conversations[convID]
		if conv == nil || conv.AutoDeleteDays == nil {
			continue
		}
		cutoff := now.AddDate(0, 0, -*conv.AutoDeleteDays)
		for _, m := range rows {
			if m.CreatedAt.Before(cutoff) {
				out = append(out, *m)
				if limit > 0 && len(out) == limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	var removed int64
	for convID, rows := range s.messages {
		kept := rows[:0]
		for _, m := range rows {
			if _, ok := drop[m.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, m)
		}
		s.messages[convID] = kept
	}
	return removed, nil
}

func (s *memoryStore) isActive(conversationID, userID string) bool {
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID && p.LeftAt == nil {
			return true
		}
	}
	return false
}

// conversationRepo / participantRepo / messageRepo adapt the shared store
// to the three repository interfaces.
type conversationRepo struct{ *memoryStore }
type participantRepo struct{ *memoryStore }
type messageRepo struct{ *memoryStore }

func (r messageRepo) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	return r.FindMessageByID(ctx, messageID)
}

// nullFeed change feed that drops everything; the scenarios assert on
// state, not deliveries.
type nullFeed struct{}

func (nullFeed) Publish(context.Context, string, domain.ChangeEvent) error {
	return nil
}

func (nullFeed) Subscribe(context.Context, string, func(domain.ChangeEvent)) error {
	return nil
}
