package app

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// Create mock create conversation
func (m *MockConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

// FindByID mock find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindDirectBetween mock find direct conversation
func (m *MockConversationRepository) FindDirectBetween(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateGroup mock update group fields
func (m *MockConversationRepository) UpdateGroup(ctx context.Context, conversationID string, upd domain.GroupUpdate) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID, upd)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// TouchLastMessage mock bump last_message_at
func (m *MockConversationRepository) TouchLastMessage(ctx context.Context, conversationID string, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}

// ListForUser mock list conversations for user
func (m *MockConversationRepository) ListForUser(ctx context.Context, userID string, organizationID *string) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID, organizationID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockParticipantRepository Mock ParticipantRepository
type MockParticipantRepository struct {
	mock.Mock
}

// Add mock add participant
func (m *MockParticipantRepository) Add(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// ListActive mock list active participants
func (m *MockParticipantRepository) ListActive(ctx context.Context, conversationID string) ([]domain.Participant, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Participant), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindActive mock find active participant
func (m *MockParticipantRepository) FindActive(ctx context.Context, conversationID, userID string) (*domain.Participant, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Participant), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountActive mock count active participants
func (m *MockParticipantRepository) CountActive(ctx context.Context, conversationID string) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

// Remove mock soft-leave participant
func (m *MockParticipantRepository) Remove(ctx context.Context, conversationID, userID string, at time.Time) error {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Error(0)
}

// MarkRead mock advance read watermark
func (m *MockParticipantRepository) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Error(0)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// ListPage mock list one page
func (m *MockMessageRepository) ListPage(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// LastMessage mock last message of conversation
func (m *MockMessageRepository) LastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find message by id
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Edit mock edit message
func (m *MockMessageRepository) Edit(ctx context.Context, messageID, senderID, content string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SoftDelete mock soft-delete message
func (m *MockMessageRepository) SoftDelete(ctx context.Context, messageID, senderID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// UnreadByConversation mock unread counts per conversation
func (m *MockMessageRepository) UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ConversationUnread), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListExpired mock list retention-expired messages
func (m *MockMessageRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteByIDs mock physical removal
func (m *MockMessageRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

// MockResourceShareRepository Mock ResourceShareRepository
type MockResourceShareRepository struct {
	mock.Mock
}

// Record mock record share grant
func (m *MockResourceShareRepository) Record(ctx context.Context, share *domain.ResourceShare) error {
	args := m.Called(ctx, share)
	return args.Error(0)
}

// FindByMessage mock find share grant by message
func (m *MockResourceShareRepository) FindByMessage(ctx context.Context, messageID string) (*domain.ResourceShare, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ResourceShare), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockArchiveRepository Mock ArchiveRepository
type MockArchiveRepository struct {
	mock.Mock
}

// ArchiveMessages mock archive write
func (m *MockArchiveRepository) ArchiveMessages(ctx context.Context, messages []domain.Message) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

// CountForConversation mock archived count
func (m *MockArchiveRepository) CountForConversation(ctx context.Context, conversationID string) (int64, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(int64), args.Error(1)
}

// MockEventExporter Mock EventExporter
type MockEventExporter struct {
	mock.Mock
}

// Export mock lifecycle export
func (m *MockEventExporter) Export(ctx context.Context, event repository.LifecycleEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockPresigner Mock Presigner
type MockPresigner struct {
	mock.Mock
}

// PresignGetURL mock presign
func (m *MockPresigner) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

// memoryFeed in-process ChangeFeed recording every published event
type memoryFeed struct {
	mu       sync.Mutex
	events   map[string][]domain.ChangeEvent
	handlers map[string][]func(domain.ChangeEvent)
}

func newMemoryFeed() *memoryFeed {
	return &memoryFeed{
		events:   map[string][]domain.ChangeEvent{},
		handlers: map[string][]func(domain.ChangeEvent){},
	}
}

func (f *memoryFeed) Publish(_ context.Context, channel string, event domain.ChangeEvent) error {
	f.mu.Lock()
	f.events[channel] = append(f.events[channel], event)
	hs := append([]func(domain.ChangeEvent){}, f.handlers[channel]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(event)
	}
	return nil
}

func (f *memoryFeed) Subscribe(_ context.Context, channel string, handler func(event domain.ChangeEvent)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[channel] = append(f.handlers[channel], handler)
	return nil
}

func (f *memoryFeed) published(channel string) []domain.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChangeEvent{}, f.events[channel]...)
}

// recordingNotifier captures mutation outcomes for assertions
type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []domain.MutationOutcome
}

func (n *recordingNotifier) Notify(outcome domain.MutationOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
}

func (n *recordingNotifier) last() *domain.MutationOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.outcomes) == 0 {
		return nil
	}
	o := n.outcomes[len(n.outcomes)-1]
	return &o
}
