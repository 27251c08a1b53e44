package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"conversation_sync_service/internal/conversation/domain"
)

// MessageRepository definition message store access
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error
	// ListPage one page of messages, newest first. The (BeforeDate,
	// BeforeSeq) cursor is strict so a page boundary row is never
	// returned twice even when timestamps collide.
	ListPage(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error)
	LastMessage(ctx context.Context, conversationID string) (*domain.Message, error)
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	// Edit only the original sender may edit; sets edited_at
	Edit(ctx context.Context, messageID, senderID, content string) (*domain.Message, error)
	// SoftDelete only the original sender may delete; sets deleted_at
	SoftDelete(ctx context.Context, messageID, senderID string) (*domain.Message, error)
	UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error)
	// ListExpired messages past their conversation's auto_delete_days
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Message, error)
	// DeleteByIDs physical removal, used only by the retention sweep
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type messageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository create a MessageRepository
func NewMessageRepository(db *pgxpool.Pool) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `m.id, m.conversation_id, m.sender_type, m.sender_id,
	m.organization_sender_id, m.content, m.message_type, m.metadata,
	m.created_at, m.seq, m.edited_at, m.deleted_at`

const messageProfileColumns = messageColumns + `,
	u.email, u.first_name, u.last_name, u.avatar_url`

func scanMessage(row pgx.Row, withProfile bool) (*domain.Message, error) {
	var m domain.Message
	var metadata []byte
	dest := []interface{}{&m.ID, &m.ConversationID, &m.SenderType, &m.SenderID,
		&m.OrganizationSenderID, &m.Content, &m.MessageType, &metadata,
		&m.CreatedAt, &m.Seq, &m.EditedAt, &m.DeletedAt}

	var email, firstName, lastName, avatarURL *string
	if withProfile {
		dest = append(dest, &email, &firstName, &lastName, &avatarURL)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	if withProfile && email != nil && m.SenderID != nil {
		m.SenderProfile = &domain.UserProfile{
			UserID:    *m.SenderID,
			Email:     *email,
			FirstName: deref(firstName),
			LastName:  deref(lastName),
			AvatarURL: deref(avatarURL),
		}
	}
	return &m, nil
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}

	// seq comes from the conversations.last_seq counter. The CTE update
	// row-locks the conversation, so concurrent sends serialize on it and
	// can never share a cursor position. A MAX(seq)+1 subquery would not
	// give that guarantee under READ COMMITTED: two inserts may both read
	// the same MAX before either commits. The messages table carries
	// UNIQUE (conversation_id, seq) as a backstop.
	err = r.db.QueryRow(ctx, `WITH counter AS (
			UPDATE conversations SET last_seq = last_seq + 1
			WHERE id = $2
			RETURNING last_seq
		)
		INSERT INTO messages
			(id, conversation_id, sender_type, sender_id, organization_sender_id,
			 content, message_type, metadata, created_at, seq)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, counter.last_seq FROM counter
		RETURNING seq`,
		msg.ID, msg.ConversationID, msg.SenderType, msg.SenderID,
		msg.OrganizationSenderID, msg.Content, msg.MessageType, metadata,
		msg.CreatedAt).Scan(&msg.Seq)
	if err != nil {
		// No counter row means the conversation does not exist.
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepository) ListPage(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	queryStr := `SELECT ` + messageProfileColumns + `
		FROM messages m
		LEFT JOIN user_profiles u ON u.user_id = m.sender_id
		WHERE m.conversation_id = $1`
	params := []interface{}{filter.ConversationID}
	paramCount := 2

	if filter.BeforeDate != nil {
		seq := int64(0)
		if filter.BeforeSeq != nil {
			seq = *filter.BeforeSeq
		}
		queryStr += fmt.Sprintf(" AND (m.created_at, m.seq) < ($%d, $%d)", paramCount, paramCount+1)
		params = append(params, *filter.BeforeDate, seq)
		paramCount += 2
	}
	if filter.AfterDate != nil {
		queryStr += fmt.Sprintf(" AND m.created_at > $%d", paramCount)
		params = append(params, *filter.AfterDate)
		paramCount++
	}

	queryStr += " ORDER BY m.created_at DESC, m.seq DESC"
	if filter.Limit > 0 {
		queryStr += fmt.Sprintf(" LIMIT $%d", paramCount)
		params = append(params, filter.Limit)
	}

	rows, err := r.db.Query(ctx, queryStr, params...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *messageRepository) LastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+messageColumns+`
		FROM messages m
		WHERE m.conversation_id = $1 AND m.deleted_at IS NULL
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT 1`, conversationID)
	return scanMessage(row, false)
}

func (r *messageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `SELECT `+messageColumns+`
		FROM messages m WHERE m.id = $1`, messageID)
	return scanMessage(row, false)
}

func (r *messageRepository) Edit(ctx context.Context, messageID, senderID, content string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `UPDATE messages m
		SET content = $1, edited_at = now()
		WHERE m.id = $2 AND m.sender_id = $3 AND m.deleted_at IS NULL
		RETURNING `+messageColumns,
		content, messageID, senderID)
	return scanMessage(row, false)
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID, senderID string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `UPDATE messages m
		SET deleted_at = now()
		WHERE m.id = $1 AND m.sender_id = $2 AND m.deleted_at IS NULL
		RETURNING `+messageColumns,
		messageID, senderID)
	return scanMessage(row, false)
}

func (r *messageRepository) UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error) {
	rows, err := r.db.Query(ctx, `SELECT m.conversation_id, count(*)
		FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id
		 AND p.user_id = $1
		 AND p.left_at IS NULL
		WHERE m.deleted_at IS NULL
		  AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)
		  AND m.sender_id IS DISTINCT FROM $1
		GROUP BY m.conversation_id
		ORDER BY count(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversationUnread
	for rows.Next() {
		var u domain.ConversationUnread
		if err := rows.Scan(&u.ConversationID, &u.UnreadCount); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *messageRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `SELECT `+messageColumns+`
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.auto_delete_days IS NOT NULL
		  AND m.created_at < $1 - (c.auto_delete_days * interval '1 day')
		ORDER BY m.created_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *messageRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
