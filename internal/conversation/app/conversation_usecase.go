package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/pkg"
	errprocess "conversation_sync_service/pkg/err"
	"conversation_sync_service/pkg/logger"
)

var (
	// ErrConversationNotFound conversation does not exist
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotParticipant actor is not an active participant
	ErrNotParticipant = errors.New("user is not an active participant")
	// ErrNotAdmin actor lacks the admin role
	ErrNotAdmin = errors.New("user is not an admin of this conversation")
	// ErrNotGroup operation only applies to group conversations
	ErrNotGroup = errors.New("conversation is not a group")
	// ErrAlreadyParticipant user already active in the conversation
	ErrAlreadyParticipant = errors.New("user is already a participant")
)

// ConversationUseCase conversation and membership mutations plus the
// enriched conversation list read.
type ConversationUseCase struct {
	convRepo        repository.ConversationRepository
	participantRepo repository.ParticipantRepository
	msgRepo         repository.MessageRepository
	feed            repository.ChangeFeed
	notifier        OutcomeNotifier
}

// NewConversationUseCase init conversation use case
func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	participantRepo repository.ParticipantRepository,
	msgRepo repository.MessageRepository,
	feed repository.ChangeFeed,
	notifier OutcomeNotifier,
) *ConversationUseCase {
	return &ConversationUseCase{
		convRepo:        convRepo,
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
		feed:            feed,
		notifier:        notifier,
	}
}

// CreateConversation create a conversation with the given participants.
// The creator becomes admin.
func (uc *ConversationUseCase) CreateConversation(
	ctx context.Context,
	convType domain.ConversationType,
	isGroup bool,
	name string,
	organizationID *string,
	creatorID string,
	memberIDs []string,
) (*domain.Conversation, error) {
	conv, err := uc.createWithParticipants(ctx, convType, isGroup, name, "", organizationID, nil, creatorID, memberIDs)
	uc.notify("create", "conversation", conv, err)
	return conv, err
}

// FindOrCreateDirect idempotent lookup-then-create for 1:1 conversations.
// Calling it twice with the same pair yields the same conversation.
func (uc *ConversationUseCase) FindOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	existing, err := uc.convRepo.FindDirectBetween(ctx, userA, userB)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		uc.notify("find_or_create_direct", "conversation", nil, err)
		return nil, err
	}

	conv, err := uc.createWithParticipants(ctx, domain.ConversationTypePersonal, false, "", "", nil, nil, userA, []string{userB})
	uc.notify("find_or_create_direct", "conversation", conv, err)
	return conv, err
}

// CreateGroup create a group conversation; the creator is admin
func (uc *ConversationUseCase) CreateGroup(
	ctx context.Context,
	name, description string,
	organizationID *string,
	autoDeleteDays *int,
	creatorID string,
	memberIDs []string,
) (*domain.Conversation, error) {
	convType := domain.ConversationTypePersonal
	if organizationID != nil {
		convType = domain.ConversationTypeOrganization
	}
	conv, err := uc.createWithParticipants(ctx, convType, true, name, description, organizationID, autoDeleteDays, creatorID, memberIDs)
	uc.notify("create_group", "conversation", conv, err)
	return conv, err
}

func (uc *ConversationUseCase) createWithParticipants(
	ctx context.Context,
	convType domain.ConversationType,
	isGroup bool,
	name, description string,
	organizationID *string,
	autoDeleteDays *int,
	creatorID string,
	memberIDs []string,
) (*domain.Conversation, error) {
	if !isGroup && len(memberIDs) != 1 {
		return nil, errprocess.Set("direct conversation must have exactly 2 participants")
	}

	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:             uuid.New().String(),
		Type:           convType,
		IsGroup:        isGroup,
		Name:           name,
		Description:    description,
		OrganizationID: organizationID,
		AutoDeleteDays: autoDeleteDays,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	members := append([]string{creatorID}, memberIDs...)
	for i, userID := range members {
		role := domain.RoleMember
		if i == 0 {
			role = domain.RoleAdmin
		}
		p := &domain.Participant{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           role,
			JoinedAt:       now,
		}
		if err := uc.participantRepo.Add(ctx, p); err != nil {
			return nil, err
		}
	}

	uc.publishConversationChange(ctx, domain.OpInsert, conv, members)
	return conv, nil
}

// UpdateGroup update group settings; only admins may do this
func (uc *ConversationUseCase) UpdateGroup(ctx context.Context, conversationID, actorID string, upd domain.GroupUpdate) (*domain.Conversation, error) {
	conv, err := uc.updateGroup(ctx, conversationID, actorID, upd)
	uc.notify("update_group", "conversation", conv, err)
	return conv, err
}

func (uc *ConversationUseCase) updateGroup(ctx context.Context, conversationID, actorID string, upd domain.GroupUpdate) (*domain.Conversation, error) {
	if err := uc.requireAdmin(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	conv, err := uc.convRepo.UpdateGroup(ctx, conversationID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotGroup
		}
		return nil, err
	}

	members := uc.activeUserIDs(ctx, conversationID)
	uc.publishConversationChange(ctx, domain.OpUpdate, conv, members)
	return conv, nil
}

// AddParticipant add a user to a group; only admins may do this
func (uc *ConversationUseCase) AddParticipant(ctx context.Context, conversationID, actorID, userID string, role domain.ParticipantRole) (*domain.Participant, error) {
	p, err := uc.addParticipant(ctx, conversationID, actorID, userID, role)
	var id string
	if p != nil {
		id = p.ID
	}
	uc.notifier.Notify(outcome("add_participant", "participant", id, err))
	return p, err
}

func (uc *ConversationUseCase) addParticipant(ctx context.Context, conversationID, actorID, userID string, role domain.ParticipantRole) (*domain.Participant, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}
	if !conv.IsGroup {
		return nil, ErrNotGroup
	}
	if err := uc.requireAdmin(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	if _, err := uc.participantRepo.FindActive(ctx, conversationID, userID); err == nil {
		return nil, ErrAlreadyParticipant
	}

	p := &domain.Participant{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		JoinedAt:       time.Now().UTC(),
	}
	if err := uc.participantRepo.Add(ctx, p); err != nil {
		return nil, err
	}

	uc.publishParticipantChange(ctx, domain.OpInsert, conversationID, p.ID, append(uc.activeUserIDs(ctx, conversationID), userID))
	return p, nil
}

// RemoveParticipant soft-remove a user from a group; only admins may do this
func (uc *ConversationUseCase) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	err := uc.removeParticipant(ctx, conversationID, actorID, userID)
	uc.notifier.Notify(outcome("remove_participant", "participant", userID, err))
	return err
}

func (uc *ConversationUseCase) removeParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	if err := uc.requireAdmin(ctx, conversationID, actorID); err != nil {
		return err
	}
	// Capture the member list before the removal so the removed user's
	// channel still receives the event.
	members := uc.activeUserIDs(ctx, conversationID)
	if !pkg.Contains(members, userID) {
		members = append(members, userID)
	}
	if err := uc.participantRepo.Remove(ctx, conversationID, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotParticipant
		}
		return err
	}
	uc.publishParticipantChange(ctx, domain.OpDelete, conversationID, userID, members)
	return nil
}

// LeaveConversation self-initiated leave; the participant row persists so
// historical messages keep their attribution
func (uc *ConversationUseCase) LeaveConversation(ctx context.Context, conversationID, userID string) error {
	members := uc.activeUserIDs(ctx, conversationID)
	err := uc.participantRepo.Remove(ctx, conversationID, userID, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		err = ErrNotParticipant
	}
	if err == nil {
		uc.publishParticipantChange(ctx, domain.OpDelete, conversationID, userID, members)
	}
	uc.notifier.Notify(outcome("leave_conversation", "participant", userID, err))
	return err
}

// MarkRead advance the caller's read high-water mark
func (uc *ConversationUseCase) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	err := uc.participantRepo.MarkRead(ctx, conversationID, userID, at)
	if errors.Is(err, repository.ErrNotFound) {
		err = ErrNotParticipant
	}
	if err == nil {
		uc.feed.Publish(ctx, domain.UserChannel(userID), domain.ChangeEvent{
			Table:          domain.TableParticipants,
			Op:             domain.OpUpdate,
			ConversationID: conversationID,
			RowID:          userID,
			At:             time.Now().UTC(),
		})
	}
	return err
}

// ListConversations conversation list for a user, enriched with active
// participants, last message and unread count, newest activity first
func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID string, organizationID *string) ([]domain.ConversationSummary, error) {
	convs, err := uc.convRepo.ListForUser(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}

	unread, err := uc.msgRepo.UnreadByConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	unreadByID := make(map[string]int, len(unread))
	for _, u := range unread {
		unreadByID[u.ConversationID] = u.UnreadCount
	}

	out := make([]domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		participants, err := uc.participantRepo.ListActive(ctx, conv.ID)
		if err != nil {
			return nil, err
		}

		last, err := uc.msgRepo.LastMessage(ctx, conv.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}

		out = append(out, domain.ConversationSummary{
			Conversation: conv,
			Participants: participants,
			LastMessage:  last,
			UnreadCount:  unreadByID[conv.ID],
		})
	}
	return out, nil
}

// ListParticipants active participants with profile data
func (uc *ConversationUseCase) ListParticipants(ctx context.Context, conversationID string) ([]domain.Participant, error) {
	return uc.participantRepo.ListActive(ctx, conversationID)
}

func (uc *ConversationUseCase) requireAdmin(ctx context.Context, conversationID, actorID string) error {
	p, err := uc.participantRepo.FindActive(ctx, conversationID, actorID)
	if err != nil {
		return ErrNotParticipant
	}
	if p.Role != domain.RoleAdmin {
		return ErrNotAdmin
	}
	return nil
}

func (uc *ConversationUseCase) activeUserIDs(ctx context.Context, conversationID string) []string {
	participants, err := uc.participantRepo.ListActive(ctx, conversationID)
	if err != nil {
		logger.Log.Warn("list active participants failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func (uc *ConversationUseCase) publishConversationChange(ctx context.Context, op domain.ChangeOp, conv *domain.Conversation, userIDs []string) {
	event := domain.ChangeEvent{
		Table:          domain.TableConversations,
		Op:             op,
		ConversationID: conv.ID,
		RowID:          conv.ID,
		At:             time.Now().UTC(),
	}
	uc.publish(ctx, event, conv.ID, userIDs)
}

func (uc *ConversationUseCase) publishParticipantChange(ctx context.Context, op domain.ChangeOp, conversationID, rowID string, userIDs []string) {
	event := domain.ChangeEvent{
		Table:          domain.TableParticipants,
		Op:             op,
		ConversationID: conversationID,
		RowID:          rowID,
		At:             time.Now().UTC(),
	}
	uc.publish(ctx, event, conversationID, userIDs)
}

func (uc *ConversationUseCase) publish(ctx context.Context, event domain.ChangeEvent, conversationID string, userIDs []string) {
	if uc.feed == nil {
		return
	}
	if err := uc.feed.Publish(ctx, domain.ConversationChannel(conversationID), event); err != nil {
		logger.Log.Warn("publish change event failed", zap.Error(err))
	}
	for _, userID := range userIDs {
		if err := uc.feed.Publish(ctx, domain.UserChannel(userID), event); err != nil {
			logger.Log.Warn("publish change event failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}

func (uc *ConversationUseCase) notify(op, entity string, conv *domain.Conversation, err error) {
	var id string
	if conv != nil {
		id = conv.ID
	}
	uc.notifier.Notify(outcome(op, entity, id, err))
}
