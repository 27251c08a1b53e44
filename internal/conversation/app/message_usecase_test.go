package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

func newMessageUseCaseForTest(
	convRepo *MockConversationRepository,
	partRepo *MockParticipantRepository,
	msgRepo *MockMessageRepository,
	shareRepo *MockResourceShareRepository,
	archiveRepo *MockArchiveRepository,
	feed *memoryFeed,
	exporter *MockEventExporter,
	notifier *recordingNotifier,
) *MessageUseCase {
	return NewMessageUseCase(convRepo, partRepo, msgRepo, shareRepo, archiveRepo, feed, exporter, notifier)
}

func TestSendMessage_HappyPath(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockExporter := new(MockEventExporter)
	feed := newMemoryFeed()
	notifier := &recordingNotifier{}

	conv := &domain.Conversation{ID: "conv-1", IsGroup: true}
	sender := &domain.Participant{UserID: "u1", Role: domain.RoleMember}

	mockConvRepo.On("FindByID", ctx, "conv-1").Return(conv, nil)
	mockPartRepo.On("FindActive", ctx, "conv-1", "u1").Return(sender, nil)
	mockMsgRepo.On("Insert", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Message).Seq = 7
	})
	mockConvRepo.On("TouchLastMessage", ctx, "conv-1", mock.Anything).Return(nil)
	mockPartRepo.On("ListActive", ctx, "conv-1").Return([]domain.Participant{
		{UserID: "u1"}, {UserID: "u2"},
	}, nil)
	mockExporter.On("Export", ctx, mock.Anything).Return(nil)

	uc := newMessageUseCaseForTest(mockConvRepo, mockPartRepo, mockMsgRepo,
		new(MockResourceShareRepository), new(MockArchiveRepository), feed, mockExporter, notifier)

	msg, err := uc.SendMessage(ctx, "conv-1", "u1", "hello", domain.MessageText, domain.Metadata{})

	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, int64(7), msg.Seq)
	assert.Equal(t, domain.SenderUser, msg.SenderType)

	// The insert fans out on the conversation channel and every active
	// participant's user channel, payload included.
	convEvents := feed.published(domain.ConversationChannel("conv-1"))
	require.Len(t, convEvents, 1)
	assert.Equal(t, domain.OpInsert, convEvents[0].Op)
	assert.NotEmpty(t, convEvents[0].Payload)

	var delivered domain.Message
	require.NoError(t, json.Unmarshal(convEvents[0].Payload, &delivered))
	assert.Equal(t, msg.ID, delivered.ID)

	assert.Len(t, feed.published(domain.UserChannel("u1")), 1)
	assert.Len(t, feed.published(domain.UserChannel("u2")), 1)

	last := notifier.last()
	require.NotNil(t, last)
	assert.True(t, last.Succeeded())
	assert.Equal(t, "send_message", last.Op)

	mockExporter.AssertExpectations(t)
}

func TestSendMessage_EmptyContent(t *testing.T) {
	uc := newMessageUseCaseForTest(new(MockConversationRepository), new(MockParticipantRepository),
		new(MockMessageRepository), new(MockResourceShareRepository), new(MockArchiveRepository),
		newMemoryFeed(), new(MockEventExporter), &recordingNotifier{})

	_, err := uc.SendMessage(context.Background(), "conv-1", "u1", "", domain.MessageText, domain.Metadata{})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestSendMessage_RejectsNonParticipant(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	notifier := &recordingNotifier{}

	conv := &domain.Conversation{ID: "conv-1"}
	mockConvRepo.On("FindByID", ctx, "conv-1").Return(conv, nil)
	mockPartRepo.On("FindActive", ctx, "conv-1", "outsider").Return(nil, repository.ErrNotFound)

	uc := newMessageUseCaseForTest(mockConvRepo, mockPartRepo, new(MockMessageRepository),
		new(MockResourceShareRepository), new(MockArchiveRepository), newMemoryFeed(),
		new(MockEventExporter), notifier)

	_, err := uc.SendMessage(ctx, "conv-1", "outsider", "hi", domain.MessageText, domain.Metadata{})
	assert.ErrorIs(t, err, ErrNotParticipant)

	last := notifier.last()
	require.NotNil(t, last)
	assert.False(t, last.Succeeded())
}

func TestSendMessage_MetadataMustMatchType(t *testing.T) {
	uc := newMessageUseCaseForTest(new(MockConversationRepository), new(MockParticipantRepository),
		new(MockMessageRepository), new(MockResourceShareRepository), new(MockArchiveRepository),
		newMemoryFeed(), new(MockEventExporter), &recordingNotifier{})
	ctx := context.Background()

	// text message must not carry resource metadata
	_, err := uc.SendMessage(ctx, "conv-1", "u1", "hi", domain.MessageText,
		domain.Metadata{Resource: &domain.ResourceMeta{ResourceID: "r1"}})
	assert.ErrorIs(t, err, ErrBadMetadata)

	// resource share must carry resource metadata
	_, err = uc.SendMessage(ctx, "conv-1", "u1", "hi", domain.MessageResourceShare, domain.Metadata{})
	assert.ErrorIs(t, err, ErrBadMetadata)

	// link message must carry link metadata
	_, err = uc.SendMessage(ctx, "conv-1", "u1", "hi", domain.MessageLink, domain.Metadata{})
	assert.ErrorIs(t, err, ErrBadMetadata)
}

func TestSendMessage_ResourceShareRecordsGrant(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockShareRepo := new(MockResourceShareRepository)
	mockExporter := new(MockEventExporter)

	conv := &domain.Conversation{ID: "conv-1"}
	sender := &domain.Participant{UserID: "u1"}
	mockConvRepo.On("FindByID", ctx, "conv-1").Return(conv, nil)
	mockPartRepo.On("FindActive", ctx, "conv-1", "u1").Return(sender, nil)
	mockMsgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	mockConvRepo.On("TouchLastMessage", ctx, "conv-1", mock.Anything).Return(nil)
	mockPartRepo.On("ListActive", ctx, "conv-1").Return([]domain.Participant{{UserID: "u1"}}, nil)
	mockExporter.On("Export", ctx, mock.Anything).Return(nil)

	var recorded *domain.ResourceShare
	mockShareRepo.On("Record", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*domain.ResourceShare)
	})

	uc := newMessageUseCaseForTest(mockConvRepo, mockPartRepo, mockMsgRepo, mockShareRepo,
		new(MockArchiveRepository), newMemoryFeed(), mockExporter, &recordingNotifier{})

	metadata := domain.Metadata{Resource: &domain.ResourceMeta{
		ResourceID: "r1",
		ObjectName: "docs/r1.pdf",
		Permission: domain.PermissionReadOnly,
	}}
	msg, err := uc.SendMessage(ctx, "conv-1", "u1", "shared a file", domain.MessageResourceShare, metadata)

	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, msg.ID, recorded.MessageID)
	assert.Equal(t, "r1", recorded.ResourceID)
	assert.Equal(t, "docs/r1.pdf", recorded.ObjectName)
}

func TestSendSystemMessage_SkipsParticipantCheck(t *testing.T) {
	ctx := context.Background()
	mockConvRepo := new(MockConversationRepository)
	mockPartRepo := new(MockParticipantRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockExporter := new(MockEventExporter)

	conv := &domain.Conversation{ID: "conv-1"}
	mockConvRepo.On("FindByID", ctx, "conv-1").Return(conv, nil)
	mockMsgRepo.On("Insert", ctx, mock.Anything).Return(nil)
	mockConvRepo.On("TouchLastMessage", ctx, "conv-1", mock.Anything).Return(nil)
	mockPartRepo.On("ListActive", ctx, "conv-1").Return([]domain.Participant{{UserID: "u1"}}, nil)
	mockExporter.On("Export", ctx, mock.Anything).Return(nil)

	uc := newMessageUseCaseForTest(mockConvRepo, mockPartRepo, mockMsgRepo,
		new(MockResourceShareRepository), new(MockArchiveRepository), newMemoryFeed(),
		mockExporter, &recordingNotifier{})

	msg, err := uc.SendSystemMessage(ctx, "conv-1", "maintenance at noon")

	require.NoError(t, err)
	assert.Equal(t, domain.SenderSystem, msg.SenderType)
	assert.Nil(t, msg.SenderID)
	mockPartRepo.AssertNotCalled(t, "FindActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessage_OnlySender(t *testing.T) {
	ctx := context.Background()
	mockMsgRepo := new(MockMessageRepository)
	notifier := &recordingNotifier{}

	mockMsgRepo.On("Edit", ctx, "m1", "imposter", "new text").Return(nil, repository.ErrNotFound)

	uc := newMessageUseCaseForTest(new(MockConversationRepository), new(MockParticipantRepository),
		mockMsgRepo, new(MockResourceShareRepository), new(MockArchiveRepository), newMemoryFeed(),
		new(MockEventExporter), notifier)

	_, err := uc.EditMessage(ctx, "m1", "imposter", "new text")
	assert.ErrorIs(t, err, ErrNotSender)
}

func TestDeleteMessage_PublishesUpdate(t *testing.T) {
	ctx := context.Background()
	mockPartRepo := new(MockParticipantRepository)
	mockMsgRepo := new(MockMessageRepository)
	mockExporter := new(MockEventExporter)
	feed := newMemoryFeed()

	deletedAt := time.Now().UTC()
	senderID := "u1"
	msg := &domain.Message{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       &senderID,
		DeletedAt:      &deletedAt,
	}
	mockMsgRepo.On("SoftDelete", ctx, "m1", "u1").Return(msg, nil)
	mockPartRepo.On("ListActive", ctx, "conv-1").Return([]domain.Participant{{UserID: "u1"}}, nil)

	var exported repository.LifecycleEvent
	mockExporter.On("Export", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		exported = args.Get(1).(repository.LifecycleEvent)
	})

	uc := newMessageUseCaseForTest(new(MockConversationRepository), mockPartRepo, mockMsgRepo,
		new(MockResourceShareRepository), new(MockArchiveRepository), feed, mockExporter, &recordingNotifier{})

	out, err := uc.DeleteMessage(ctx, "m1", "u1")

	require.NoError(t, err)
	assert.True(t, out.Deleted())

	// Soft delete is an update on the wire; the row survives for counts.
	events := feed.published(domain.ConversationChannel("conv-1"))
	require.Len(t, events, 1)
	assert.Equal(t, domain.OpUpdate, events[0].Op)
	assert.Equal(t, "deleted", exported.Kind)
}

func TestGetUnreadCount_TotalEqualsSum(t *testing.T) {
	ctx := context.Background()
	mockMsgRepo := new(MockMessageRepository)
	mockMsgRepo.On("UnreadByConversation", ctx, "u1").Return([]domain.ConversationUnread{
		{ConversationID: "conv-a", UnreadCount: 2},
		{ConversationID: "conv-b", UnreadCount: 5},
	}, nil)

	uc := newMessageUseCaseForTest(new(MockConversationRepository), new(MockParticipantRepository),
		mockMsgRepo, new(MockResourceShareRepository), new(MockArchiveRepository), newMemoryFeed(),
		new(MockEventExporter), &recordingNotifier{})

	count, err := uc.GetUnreadCount(ctx, "u1")

	require.NoError(t, err)
	assert.Equal(t, 7, count.Total)
	assert.Len(t, count.ByConversation, 2)
}

func TestCleanupOldMessages_ArchivesThenPurges(t *testing.T) {
	ctx := context.Background()
	mockMsgRepo := new(MockMessageRepository)
	mockArchiveRepo := new(MockArchiveRepository)
	mockExporter := new(MockEventExporter)
	feed := newMemoryFeed()

	expired := []domain.Message{
		{ID: "m1", ConversationID: "conv-a"},
		{ID: "m2", ConversationID: "conv-a"},
		{ID: "m3", ConversationID: "conv-b"},
	}
	mockMsgRepo.On("ListExpired", ctx, mock.Anything, 500).Return(expired, nil)
	mockArchiveRepo.On("ArchiveMessages", ctx, expired).Return(nil)
	mockMsgRepo.On("DeleteByIDs", ctx, []string{"m1", "m2", "m3"}).Return(int64(3), nil)

	exported := map[string]int64{}
	mockExporter.On("Export", ctx, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		e := args.Get(1).(repository.LifecycleEvent)
		exported[e.ConversationID] = e.Count
	})

	uc := newMessageUseCaseForTest(new(MockConversationRepository), new(MockParticipantRepository),
		mockMsgRepo, new(MockResourceShareRepository), mockArchiveRepo, feed, mockExporter, &recordingNotifier{})

	purged, err := uc.CleanupOldMessages(ctx, 500)

	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	// Bulk removal publishes a payload-less delete per touched
	// conversation so watchers fall back to a refetch.
	for _, channel := range []string{domain.ConversationChannel("conv-a"), domain.ConversationChannel("conv-b")} {
		events := feed.published(channel)
		require.Len(t, events, 1)
		assert.Equal(t, domain.OpDelete, events[0].Op)
		assert.Empty(t, events[0].Payload)
	}

	// Each conversation reports only the rows it lost, not the batch total.
	assert.Equal(t, map[string]int64{"conv-a": 2, "conv-b": 1}, exported)

	mockArchiveRepo.AssertExpectations(t)
	mockMsgRepo.AssertExpectations(t)
}

func TestCleanupOldMessages_NothingExpired(t *testing.T) {
	ctx := context.Background()
	mockMsgRepo := new(MockMessageRepository)
	mockArchiveRepo := new(MockArchiveRepository)

	mockMsgRepo.On("ListExpired", ctx, mock.Anything, 500).Return([]domain.Message{}, nil)

	uc := newMessageUseCaseForTest(new(MockConversationRepository), new(MockParticipantRepository),
		mockMsgRepo, new(MockResourceShareRepository), mockArchiveRepo, newMemoryFeed(),
		new(MockEventExporter), &recordingNotifier{})

	purged, err := uc.CleanupOldMessages(ctx, 500)

	require.NoError(t, err)
	assert.Zero(t, purged)
	mockArchiveRepo.AssertNotCalled(t, "ArchiveMessages", mock.Anything, mock.Anything)
}
