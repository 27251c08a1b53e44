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

// ErrNotFound returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// ConversationRepository definition conversation store access
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	// FindDirectBetween look up the non-group conversation both users
	// actively participate in. Returns ErrNotFound when none exists.
	FindDirectBetween(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	UpdateGroup(ctx context.Context, conversationID string, upd domain.GroupUpdate) (*domain.Conversation, error)
	TouchLastMessage(ctx context.Context, conversationID string, at time.Time) error
	// ListForUser conversations the user actively participates in,
	// optionally scoped to one organization, newest activity first.
	ListForUser(ctx context.Context, userID string, organizationID *string) ([]domain.Conversation, error)
}

type conversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository create a ConversationRepository
func NewConversationRepository(db *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{db: db}
}

const conversationColumns = `id, type, is_group, name, description, organization_id,
	auto_delete_days, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	var name, description *string
	err := row.Scan(&c.ID, &c.Type, &c.IsGroup, &name, &description,
		&c.OrganizationID, &c.AutoDeleteDays, &c.LastMessageAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if name != nil {
		c.Name = *name
	}
	if description != nil {
		c.Description = *description
	}
	return &c, nil
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	_, err := r.db.Exec(ctx, `INSERT INTO conversations
		(id, type, is_group, name, description, organization_id, auto_delete_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		conv.ID, conv.Type, conv.IsGroup, conv.Name, conv.Description,
		conv.OrganizationID, conv.AutoDeleteDays, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`,
		conversationID)
	return scanConversation(row)
}

func (r *conversationRepository) FindDirectBetween(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.is_group = false
		  AND EXISTS (SELECT 1 FROM conversation_participants p
			WHERE p.conversation_id = c.id AND p.user_id = $1 AND p.left_at IS NULL)
		  AND EXISTS (SELECT 1 FROM conversation_participants p
			WHERE p.conversation_id = c.id AND p.user_id = $2 AND p.left_at IS NULL)
		ORDER BY c.created_at ASC
		LIMIT 1`, userA, userB)
	return scanConversation(row)
}

func (r *conversationRepository) UpdateGroup(ctx context.Context, conversationID string, upd domain.GroupUpdate) (*domain.Conversation, error) {
	queryStr := "UPDATE conversations SET updated_at = now()"
	params := []interface{}{}
	paramCount := 1

	if upd.Name != nil {
		queryStr += fmt.Sprintf(", name = $%d", paramCount)
		params = append(params, *upd.Name)
		paramCount++
	}
	if upd.Description != nil {
		queryStr += fmt.Sprintf(", description = $%d", paramCount)
		params = append(params, *upd.Description)
		paramCount++
	}
	if upd.AutoDeleteDays != nil {
		queryStr += fmt.Sprintf(", auto_delete_days = $%d", paramCount)
		params = append(params, *upd.AutoDeleteDays)
		paramCount++
	}

	queryStr += fmt.Sprintf(" WHERE id = $%d AND is_group = true RETURNING %s", paramCount, conversationColumns)
	params = append(params, conversationID)

	row := r.db.QueryRow(ctx, queryStr, params...)
	return scanConversation(row)
}

func (r *conversationRepository) TouchLastMessage(ctx context.Context, conversationID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversations SET last_message_at = $1, updated_at = now() WHERE id = $2`,
		at, conversationID)
	return err
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string, organizationID *string) ([]domain.Conversation, error) {
	queryStr := `SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE EXISTS (SELECT 1 FROM conversation_participants p
			WHERE p.conversation_id = c.id AND p.user_id = $1 AND p.left_at IS NULL)`
	params := []interface{}{userID}

	if organizationID != nil {
		queryStr += " AND c.organization_id = $2"
		params = append(params, *organizationID)
	}
	queryStr += " ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC"

	rows, err := r.db.Query(ctx, queryStr, params...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
