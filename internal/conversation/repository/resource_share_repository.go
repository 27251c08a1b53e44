package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"conversation_sync_service/internal/conversation/domain"
)

// ResourceShareRepository definition capability grants attached to messages
type ResourceShareRepository interface {
	Record(ctx context.Context, share *domain.ResourceShare) error
	FindByMessage(ctx context.Context, messageID string) (*domain.ResourceShare, error)
}

type resourceShareRepository struct {
	db *pgxpool.Pool
}

// NewResourceShareRepository create a ResourceShareRepository
func NewResourceShareRepository(db *pgxpool.Pool) ResourceShareRepository {
	return &resourceShareRepository{db: db}
}

func (r *resourceShareRepository) Record(ctx context.Context, share *domain.ResourceShare) error {
	_, err := r.db.Exec(ctx, `INSERT INTO resource_shares
		(id, message_id, resource_id, object_name, permission, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		share.ID, share.MessageID, share.ResourceID, share.ObjectName,
		share.Permission, share.ExpiresAt, share.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert resource share: %w", err)
	}
	return nil
}

func (r *resourceShareRepository) FindByMessage(ctx context.Context, messageID string) (*domain.ResourceShare, error) {
	var s domain.ResourceShare
	err := r.db.QueryRow(ctx, `SELECT id, message_id, resource_id, object_name, permission, expires_at, created_at
		FROM resource_shares WHERE message_id = $1`, messageID).
		Scan(&s.ID, &s.MessageID, &s.ResourceID, &s.ObjectName, &s.Permission, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
