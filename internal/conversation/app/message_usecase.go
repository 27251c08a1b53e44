package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/pkg/logger"
)

var (
	// ErrNotSender only the original sender may edit or delete
	ErrNotSender = errors.New("message not found or user is not the sender")
	// ErrEmptyContent message content must not be empty
	ErrEmptyContent = errors.New("message content is empty")
	// ErrBadMetadata metadata does not match the message type
	ErrBadMetadata = errors.New("metadata does not match message type")
)

// MessageUseCase message mutations, the paged message read, unread counts
// and the retention sweep.
type MessageUseCase struct {
	convRepo        repository.ConversationRepository
	participantRepo repository.ParticipantRepository
	msgRepo         repository.MessageRepository
	shareRepo       repository.ResourceShareRepository
	archiveRepo     repository.ArchiveRepository
	feed            repository.ChangeFeed
	exporter        repository.EventExporter
	notifier        OutcomeNotifier
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	convRepo repository.ConversationRepository,
	participantRepo repository.ParticipantRepository,
	msgRepo repository.MessageRepository,
	shareRepo repository.ResourceShareRepository,
	archiveRepo repository.ArchiveRepository,
	feed repository.ChangeFeed,
	exporter repository.EventExporter,
	notifier OutcomeNotifier,
) *MessageUseCase {
	return &MessageUseCase{
		convRepo:        convRepo,
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
		shareRepo:       shareRepo,
		archiveRepo:     archiveRepo,
		feed:            feed,
		exporter:        exporter,
		notifier:        notifier,
	}
}

// SendMessage send a user message into a conversation
func (uc *MessageUseCase) SendMessage(
	ctx context.Context,
	conversationID, senderID, content string,
	messageType domain.MessageType,
	metadata domain.Metadata,
) (*domain.Message, error) {
	msg, err := uc.send(ctx, conversationID, domain.SenderUser, &senderID, nil, content, messageType, metadata)
	uc.notifyMessage("send_message", msg, err)
	return msg, err
}

// SendOrganizationMessage send a message on behalf of an organization
func (uc *MessageUseCase) SendOrganizationMessage(
	ctx context.Context,
	conversationID, organizationID, content string,
	messageType domain.MessageType,
	metadata domain.Metadata,
) (*domain.Message, error) {
	msg, err := uc.send(ctx, conversationID, domain.SenderOrganization, nil, &organizationID, content, messageType, metadata)
	uc.notifyMessage("send_organization_message", msg, err)
	return msg, err
}

// SendSystemMessage send a platform-generated message; no sender identity
func (uc *MessageUseCase) SendSystemMessage(ctx context.Context, conversationID, content string) (*domain.Message, error) {
	msg, err := uc.send(ctx, conversationID, domain.SenderSystem, nil, nil, content, domain.MessageText, domain.Metadata{})
	uc.notifyMessage("send_system_message", msg, err)
	return msg, err
}

func (uc *MessageUseCase) send(
	ctx context.Context,
	conversationID string,
	senderType domain.SenderType,
	senderID, organizationSenderID *string,
	content string,
	messageType domain.MessageType,
	metadata domain.Metadata,
) (*domain.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if err := validateMetadata(messageType, metadata); err != nil {
		return nil, err
	}

	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}
	if senderID != nil {
		if _, err := uc.participantRepo.FindActive(ctx, conversationID, *senderID); err != nil {
			return nil, ErrNotParticipant
		}
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:                   uuid.New().String(),
		ConversationID:       conv.ID,
		SenderType:           senderType,
		SenderID:             senderID,
		OrganizationSenderID: organizationSenderID,
		Content:              content,
		MessageType:          messageType,
		Metadata:             metadata,
		CreatedAt:            now,
	}
	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		return nil, err
	}

	if messageType == domain.MessageResourceShare {
		share := &domain.ResourceShare{
			ID:         uuid.New().String(),
			MessageID:  msg.ID,
			ResourceID: metadata.Resource.ResourceID,
			ObjectName: metadata.Resource.ObjectName,
			Permission: metadata.Resource.Permission,
			CreatedAt:  now,
		}
		if err := uc.shareRepo.Record(ctx, share); err != nil {
			return nil, err
		}
	}

	if err := uc.convRepo.TouchLastMessage(ctx, conv.ID, now); err != nil {
		logger.Log.Warn("touch last_message_at failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}

	uc.publishMessageChange(ctx, domain.OpInsert, msg)
	uc.export(ctx, "sent", msg.ConversationID, msg.ID, 0)

	return msg, nil
}

// EditMessage edit a message; only its original sender may do this
func (uc *MessageUseCase) EditMessage(ctx context.Context, messageID, senderID, content string) (*domain.Message, error) {
	msg, err := uc.editMessage(ctx, messageID, senderID, content)
	uc.notifyMessage("edit_message", msg, err)
	return msg, err
}

func (uc *MessageUseCase) editMessage(ctx context.Context, messageID, senderID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	msg, err := uc.msgRepo.Edit(ctx, messageID, senderID, content)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotSender
		}
		return nil, err
	}

	uc.publishMessageChange(ctx, domain.OpUpdate, msg)
	uc.export(ctx, "edited", msg.ConversationID, msg.ID, 0)
	return msg, nil
}

// DeleteMessage soft-delete a message; only its original sender may do
// this. The row stays countable for analytics.
func (uc *MessageUseCase) DeleteMessage(ctx context.Context, messageID, senderID string) (*domain.Message, error) {
	msg, err := uc.deleteMessage(ctx, messageID, senderID)
	uc.notifyMessage("delete_message", msg, err)
	return msg, err
}

func (uc *MessageUseCase) deleteMessage(ctx context.Context, messageID, senderID string) (*domain.Message, error) {
	msg, err := uc.msgRepo.SoftDelete(ctx, messageID, senderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotSender
		}
		return nil, err
	}

	uc.publishMessageChange(ctx, domain.OpUpdate, msg)
	uc.export(ctx, "deleted", msg.ConversationID, msg.ID, 0)
	return msg, nil
}

// GetMessages one page of messages, newest first
func (uc *MessageUseCase) GetMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	return uc.msgRepo.ListPage(ctx, filter)
}

// GetUnreadCount aggregate unread for a user; the total always equals the
// sum of the per-conversation counts
func (uc *MessageUseCase) GetUnreadCount(ctx context.Context, userID string) (domain.UnreadCount, error) {
	byConversation, err := uc.msgRepo.UnreadByConversation(ctx, userID)
	if err != nil {
		return domain.UnreadCount{}, err
	}
	return domain.NewUnreadCount(byConversation), nil
}

// CleanupOldMessages retention sweep: archive then physically remove
// messages past their conversation's auto_delete_days. Returns the number
// of purged rows.
func (uc *MessageUseCase) CleanupOldMessages(ctx context.Context, batchSize int) (int64, error) {
	expired, err := uc.msgRepo.ListExpired(ctx, time.Now().UTC(), batchSize)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if uc.archiveRepo != nil {
		if err := uc.archiveRepo.ArchiveMessages(ctx, expired); err != nil {
			return 0, err
		}
	}

	ids := make([]string, 0, len(expired))
	touched := make(map[string]int64)
	for _, m := range expired {
		ids = append(ids, m.ID)
		touched[m.ConversationID]++
	}

	purged, err := uc.msgRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	// Bulk delete carries no row payload; consumers fall back to a
	// full refetch. Each conversation exports its own share of the
	// batch, not the batch total.
	for conversationID, count := range touched {
		uc.publishFeed(ctx, domain.ConversationChannel(conversationID), domain.ChangeEvent{
			Table:          domain.TableMessages,
			Op:             domain.OpDelete,
			ConversationID: conversationID,
			At:             time.Now().UTC(),
		})
		uc.export(ctx, "purged", conversationID, "", count)
	}

	uc.notifier.Notify(outcome("cleanup_old_messages", "message", "", nil))
	return purged, nil
}

func validateMetadata(messageType domain.MessageType, metadata domain.Metadata) error {
	switch messageType {
	case domain.MessageText:
		if metadata.Resource != nil || metadata.Link != nil {
			return ErrBadMetadata
		}
	case domain.MessageResourceShare:
		if metadata.Resource == nil || metadata.Link != nil {
			return ErrBadMetadata
		}
	case domain.MessageLink:
		if metadata.Link == nil || metadata.Resource != nil {
			return ErrBadMetadata
		}
	default:
		return ErrBadMetadata
	}
	return nil
}

func (uc *MessageUseCase) publishMessageChange(ctx context.Context, op domain.ChangeOp, msg *domain.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		payload = nil
	}
	event := domain.ChangeEvent{
		Table:          domain.TableMessages,
		Op:             op,
		ConversationID: msg.ConversationID,
		RowID:          msg.ID,
		Payload:        payload,
		At:             time.Now().UTC(),
	}

	uc.publishFeed(ctx, domain.ConversationChannel(msg.ConversationID), event)

	participants, err := uc.participantRepo.ListActive(ctx, msg.ConversationID)
	if err != nil {
		logger.Log.Warn("list participants for fan-out failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
		return
	}
	for _, p := range participants {
		uc.publishFeed(ctx, domain.UserChannel(p.UserID), event)
	}
}

func (uc *MessageUseCase) publishFeed(ctx context.Context, channel string, event domain.ChangeEvent) {
	if uc.feed == nil {
		return
	}
	if err := uc.feed.Publish(ctx, channel, event); err != nil {
		logger.Log.Warn("publish change event failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

func (uc *MessageUseCase) export(ctx context.Context, kind, conversationID, messageID string, count int64) {
	if uc.exporter == nil {
		return
	}
	err := uc.exporter.Export(ctx, repository.LifecycleEvent{
		Kind:           kind,
		ConversationID: conversationID,
		MessageID:      messageID,
		Count:          count,
		At:             time.Now().UTC(),
	})
	if err != nil {
		logger.Log.Warn("export lifecycle event failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func (uc *MessageUseCase) notifyMessage(op string, msg *domain.Message, err error) {
	var id string
	if msg != nil {
		id = msg.ID
	}
	uc.notifier.Notify(outcome(op, "message", id, err))
}
