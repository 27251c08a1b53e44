package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	m.Run()
}

func TestFindOrCreateDirect_ReturnsExisting(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}
	feed := newMemoryFeed()

	existing := &domain.Conversation{ID: uuid.New().String(), Type: domain.ConversationTypePersonal}
	mockConvRepo.On("FindDirectBetween", ctx, "u1", "u2").Return(existing, nil)

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, feed, notifier)
	conv, err := uc.FindOrCreateDirect(ctx, "u1", "u2")

	assert.NoError(t, err)
	assert.Equal(t, existing.ID, conv.ID)
	mockConvRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFindOrCreateDirect_CreatesWhenMissing(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}
	feed := newMemoryFeed()

	mockConvRepo.On("FindDirectBetween", ctx, "u1", "u2").Return(nil, repository.ErrNotFound)
	mockConvRepo.On("Create", ctx, mock.Anything).Return(nil)

	var added []domain.Participant
	mockPartRepo.On("Add", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		added = append(added, *args.Get(1).(*domain.Participant))
	})

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, feed, notifier)
	conv, err := uc.FindOrCreateDirect(ctx, "u1", "u2")

	require.NoError(t, err)
	assert.False(t, conv.IsGroup)
	assert.Equal(t, domain.ConversationTypePersonal, conv.Type)

	require.Len(t, added, 2)
	assert.Equal(t, "u1", added[0].UserID)
	assert.Equal(t, domain.RoleAdmin, added[0].Role)
	assert.Equal(t, "u2", added[1].UserID)
	assert.Equal(t, domain.RoleMember, added[1].Role)

	// Both members hear about the new conversation on their channels.
	assert.Len(t, feed.published(domain.UserChannel("u1")), 1)
	assert.Len(t, feed.published(domain.UserChannel("u2")), 1)
	assert.Len(t, feed.published(domain.ConversationChannel(conv.ID)), 1)

	last := notifier.last()
	require.NotNil(t, last)
	assert.True(t, last.Succeeded())
	assert.Equal(t, "find_or_create_direct", last.Op)

	mockConvRepo.AssertExpectations(t)
	mockPartRepo.AssertExpectations(t)
}

func TestCreateGroup_CreatorBecomesAdmin(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}

	orgID := "org-1"
	mockConvRepo.On("Create", ctx, mock.Anything).Return(nil)

	var added []domain.Participant
	mockPartRepo.On("Add", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		added = append(added, *args.Get(1).(*domain.Participant))
	})

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, newMemoryFeed(), notifier)
	conv, err := uc.CreateGroup(ctx, "team", "the team room", &orgID, nil, "creator", []string{"m1", "m2"})

	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
	assert.Equal(t, domain.ConversationTypeOrganization, conv.Type)

	require.Len(t, added, 3)
	assert.Equal(t, domain.RoleAdmin, added[0].Role)
	assert.Equal(t, domain.RoleMember, added[1].Role)
	assert.Equal(t, domain.RoleMember, added[2].Role)
}

func TestUpdateGroup_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}

	member := &domain.Participant{UserID: "u1", Role: domain.RoleMember}
	mockPartRepo.On("FindActive", ctx, "conv-1", "u1").Return(member, nil)

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, newMemoryFeed(), notifier)
	name := "renamed"
	_, err := uc.UpdateGroup(ctx, "conv-1", "u1", domain.GroupUpdate{Name: &name})

	assert.ErrorIs(t, err, ErrNotAdmin)
	mockConvRepo.AssertNotCalled(t, "UpdateGroup", mock.Anything, mock.Anything, mock.Anything)

	last := notifier.last()
	require.NotNil(t, last)
	assert.False(t, last.Succeeded())
}

func TestAddParticipant_RejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}

	group := &domain.Conversation{ID: "conv-1", IsGroup: true}
	admin := &domain.Participant{UserID: "admin", Role: domain.RoleAdmin}
	already := &domain.Participant{UserID: "u2", Role: domain.RoleMember}

	mockConvRepo.On("FindByID", ctx, "conv-1").Return(group, nil)
	mockPartRepo.On("FindActive", ctx, "conv-1", "admin").Return(admin, nil)
	mockPartRepo.On("FindActive", ctx, "conv-1", "u2").Return(already, nil)

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, newMemoryFeed(), notifier)
	_, err := uc.AddParticipant(ctx, "conv-1", "admin", "u2", domain.RoleMember)

	assert.ErrorIs(t, err, ErrAlreadyParticipant)
	mockPartRepo.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestAddParticipant_RejectsDirectConversation(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)

	direct := &domain.Conversation{ID: "conv-1", IsGroup: false}
	mockConvRepo.On("FindByID", ctx, "conv-1").Return(direct, nil)

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, newMemoryFeed(), &recordingNotifier{})
	_, err := uc.AddParticipant(ctx, "conv-1", "admin", "u2", domain.RoleMember)

	assert.ErrorIs(t, err, ErrNotGroup)
}

func TestRemoveParticipant_NotifiesFormerMember(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	feed := newMemoryFeed()

	admin := &domain.Participant{UserID: "admin", Role: domain.RoleAdmin}
	mockPartRepo.On("FindActive", ctx, "conv-1", "admin").Return(admin, nil)
	mockPartRepo.On("ListActive", ctx, "conv-1").Return([]domain.Participant{
		{UserID: "admin"}, {UserID: "u2"},
	}, nil)
	mockPartRepo.On("Remove", ctx, "conv-1", "u2", mock.Anything).Return(nil)

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, nil, feed, &recordingNotifier{})
	require.NoError(t, uc.RemoveParticipant(ctx, "conv-1", "admin", "u2"))

	// The membership list was captured before the removal, so the removed
	// user still hears the event that drops the conversation from their
	// screens.
	events := feed.published(domain.UserChannel("u2"))
	require.Len(t, events, 1)
	assert.Equal(t, domain.TableParticipants, events[0].Table)
	assert.Equal(t, domain.OpDelete, events[0].Op)
	assert.Equal(t, "u2", events[0].RowID)
}

func TestLeaveConversation_NotParticipant(t *testing.T) {
	ctx := context.Background()
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}

	mockPartRepo.On("ListActive", ctx, "conv-1").Return([]domain.Participant{}, nil)
	mockPartRepo.On("Remove", ctx, "conv-1", "ghost", mock.Anything).Return(repository.ErrNotFound)

	uc := NewConversationUseCase(new(MockConversationRepository), mockPartRepo, nil, newMemoryFeed(), notifier)
	err := uc.LeaveConversation(ctx, "conv-1", "ghost")

	assert.ErrorIs(t, err, ErrNotParticipant)
	last := notifier.last()
	require.NotNil(t, last)
	assert.False(t, last.Succeeded())
}

func TestMarkRead_PublishesWatermarkChange(t *testing.T) {
	ctx := context.Background()
	mockPartRepo := new(MockParticipantRepository)
	feed := newMemoryFeed()
	at := time.Now().UTC()

	mockPartRepo.On("MarkRead", ctx, "conv-1", "u1", at).Return(nil)

	uc := NewConversationUseCase(new(MockConversationRepository), mockPartRepo, nil, feed, &recordingNotifier{})
	require.NoError(t, uc.MarkRead(ctx, "conv-1", "u1", at))

	events := feed.published(domain.UserChannel("u1"))
	require.Len(t, events, 1)
	assert.Equal(t, domain.TableParticipants, events[0].Table)
	assert.Equal(t, domain.OpUpdate, events[0].Op)
	assert.Equal(t, "conv-1", events[0].ConversationID)
}

func TestListConversations_EnrichesRows(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	mockMsgRepo := new(MockMessageRepository)

	convA := domain.Conversation{ID: "conv-a"}
	convB := domain.Conversation{ID: "conv-b"}
	mockConvRepo.On("ListForUser", ctx, "u1", (*string)(nil)).Return([]domain.Conversation{convA, convB}, nil)
	mockMsgRepo.On("UnreadByConversation", ctx, "u1").Return([]domain.ConversationUnread{
		{ConversationID: "conv-b", UnreadCount: 3},
	}, nil)
	mockPartRepo.On("ListActive", ctx, "conv-a").Return([]domain.Participant{{UserID: "u1"}}, nil)
	mockPartRepo.On("ListActive", ctx, "conv-b").Return([]domain.Participant{{UserID: "u1"}, {UserID: "u2"}}, nil)

	lastB := &domain.Message{ID: "m9", ConversationID: "conv-b"}
	mockMsgRepo.On("LastMessage", ctx, "conv-a").Return(nil, repository.ErrNotFound)
	mockMsgRepo.On("LastMessage", ctx, "conv-b").Return(lastB, nil)

	uc := NewConversationUseCase(mockConvRepo, mockPartRepo, mockMsgRepo, newMemoryFeed(), &recordingNotifier{})
	rows, err := uc.ListConversations(ctx, "u1", nil)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].LastMessage)
	assert.Equal(t, 0, rows[0].UnreadCount)
	assert.Equal(t, "m9", rows[1].LastMessage.ID)
	assert.Equal(t, 3, rows[1].UnreadCount)
	assert.Len(t, rows[1].Participants, 2)
}
