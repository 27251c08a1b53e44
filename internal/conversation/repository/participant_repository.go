package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"conversation_sync_service/internal/conversation/domain"
)

// ParticipantRepository definition conversation membership access
type ParticipantRepository interface {
	Add(ctx context.Context, p *domain.Participant) error
	// ListActive active participants with profile data joined
	ListActive(ctx context.Context, conversationID string) ([]domain.Participant, error)
	FindActive(ctx context.Context, conversationID, userID string) (*domain.Participant, error)
	CountActive(ctx context.Context, conversationID string) (int, error)
	// Remove soft-leave: sets left_at, the row persists for attribution
	Remove(ctx context.Context, conversationID, userID string, at time.Time) error
	MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

type participantRepository struct {
	db *pgxpool.Pool
}

// NewParticipantRepository create a ParticipantRepository
func NewParticipantRepository(db *pgxpool.Pool) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) Add(ctx context.Context, p *domain.Participant) error {
	_, err := r.db.Exec(ctx, `INSERT INTO conversation_participants
		(id, conversation_id, user_id, role, last_read_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.ConversationID, p.UserID, p.Role, p.LastReadAt, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *participantRepository) ListActive(ctx context.Context, conversationID string) ([]domain.Participant, error) {
	rows, err := r.db.Query(ctx, `SELECT
			p.id, p.conversation_id, p.user_id, p.role, p.last_read_at, p.joined_at, p.left_at,
			u.email, u.first_name, u.last_name, u.avatar_url
		FROM conversation_participants p
		LEFT JOIN user_profiles u ON u.user_id = p.user_id
		WHERE p.conversation_id = $1 AND p.left_at IS NULL
		ORDER BY p.joined_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var email, firstName, lastName, avatarURL *string
		if err := rows.Scan(&p.ID, &p.ConversationID, &p.UserID, &p.Role,
			&p.LastReadAt, &p.JoinedAt, &p.LeftAt,
			&email, &firstName, &lastName, &avatarURL); err != nil {
			return nil, err
		}
		if email != nil {
			p.Profile = &domain.UserProfile{
				UserID:    p.UserID,
				Email:     *email,
				FirstName: deref(firstName),
				LastName:  deref(lastName),
				AvatarURL: deref(avatarURL),
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *participantRepository) FindActive(ctx context.Context, conversationID, userID string) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.QueryRow(ctx, `SELECT id, conversation_id, user_id, role, last_read_at, joined_at, left_at
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL`,
		conversationID, userID).
		Scan(&p.ID, &p.ConversationID, &p.UserID, &p.Role, &p.LastReadAt, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *participantRepository) CountActive(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM conversation_participants WHERE conversation_id = $1 AND left_at IS NULL`,
		conversationID).Scan(&n)
	return n, err
}

func (r *participantRepository) Remove(ctx context.Context, conversationID, userID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE conversation_participants
		SET left_at = $1
		WHERE conversation_id = $2 AND user_id = $3 AND left_at IS NULL`,
		at, conversationID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *participantRepository) MarkRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE conversation_participants
		SET last_read_at = $1
		WHERE conversation_id = $2 AND user_id = $3 AND left_at IS NULL`,
		at, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
