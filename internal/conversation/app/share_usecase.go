package app

import (
	"context"
	"errors"
	"time"

	"conversation_sync_service/internal/conversation/repository"
)

var (
	// ErrShareNotFound no grant recorded for the message
	ErrShareNotFound = errors.New("resource share not found")
	// ErrShareExpired the grant's expiry has lapsed
	ErrShareExpired = errors.New("resource share expired")
)

// maxShareLinkTTL upper bound for a presigned link, even on grants
// without an expiry.
const maxShareLinkTTL = 15 * time.Minute

// Presigner generates a time-bounded URL for a stored object
type Presigner interface {
	PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ShareUseCase resolves resource_share grants into presigned links
type ShareUseCase struct {
	shareRepo       repository.ResourceShareRepository
	msgRepo         repository.MessageRepository
	participantRepo repository.ParticipantRepository
	presigner       Presigner
}

// NewShareUseCase init share use case
func NewShareUseCase(
	shareRepo repository.ResourceShareRepository,
	msgRepo repository.MessageRepository,
	participantRepo repository.ParticipantRepository,
	presigner Presigner,
) *ShareUseCase {
	return &ShareUseCase{
		shareRepo:       shareRepo,
		msgRepo:         msgRepo,
		participantRepo: participantRepo,
		presigner:       presigner,
	}
}

// ResolveShareLink return a presigned URL for the resource shared by the
// given message. The caller must be an active participant of the message's
// conversation and the grant must not be expired. The link TTL never
// exceeds the grant's remaining lifetime.
func (uc *ShareUseCase) ResolveShareLink(ctx context.Context, messageID, userID string) (string, error) {
	share, err := uc.shareRepo.FindByMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrShareNotFound
		}
		return "", err
	}

	now := time.Now().UTC()
	if share.Expired(now) {
		return "", ErrShareExpired
	}

	msg, err := uc.msgRepo.FindByID(ctx, share.MessageID)
	if err != nil {
		return "", err
	}
	if _, err := uc.participantRepo.FindActive(ctx, msg.ConversationID, userID); err != nil {
		return "", ErrNotParticipant
	}

	ttl := maxShareLinkTTL
	if share.ExpiresAt != nil {
		if remaining := share.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}

	return uc.presigner.PresignGetURL(ctx, share.ObjectName, ttl)
}
