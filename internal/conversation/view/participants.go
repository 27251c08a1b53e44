package view

import (
	"context"
	"time"

	"conversation_sync_service/internal/conversation/domain"
	"conversation_sync_service/internal/conversation/repository"
)

// ParticipantLister the read the participant session depends on
type ParticipantLister interface {
	ListParticipants(ctx context.Context, conversationID string) ([]domain.Participant, error)
}

// ParticipantView live active-participant roster for one conversation.
// Membership events carry no row payload, so every change refetches.
type ParticipantView struct {
	*Session[[]domain.Participant]
}

// OpenParticipants start a participant session for one conversation
func OpenParticipants(
	ctx context.Context,
	lister ParticipantLister,
	feed repository.ChangeFeed,
	co *Coalescer,
	timeout time.Duration,
	conversationID string,
) (*ParticipantView, error) {
	v := &ParticipantView{}
	v.Session = NewSession(ctx, timeout, func(ctx context.Context) ([]domain.Participant, error) {
		return coalesce(co, "participants:"+conversationID, func() ([]domain.Participant, error) {
			return lister.ListParticipants(ctx, conversationID)
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

func (v *ParticipantView) handle(event domain.ChangeEvent) {
	if event.Table != domain.TableParticipants {
		return
	}
	v.Refetch()
}
