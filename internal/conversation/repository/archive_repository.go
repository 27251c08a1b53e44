package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"conversation_sync_service/internal/conversation/domain"
)

// ArchiveRepository definition cold storage for retention-purged messages.
// Purged rows land here before physical delete so analytics keep the full
// message count.
type ArchiveRepository interface {
	ArchiveMessages(ctx context.Context, messages []domain.Message) error
	CountForConversation(ctx context.Context, conversationID string) (int64, error)
}

type archiveRepository struct {
	coll *mongo.Collection
}

// NewMongoArchiveRepository create an ArchiveRepository
func NewMongoArchiveRepository(db *mongo.Database) ArchiveRepository {
	return &archiveRepository{
		coll: db.Collection("message_archive"),
	}
}

func (r *archiveRepository) ArchiveMessages(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		docs = append(docs, bson.M{
			"_id":             m.ID,
			"conversation_id": m.ConversationID,
			"sender_type":     m.SenderType,
			"sender_id":       m.SenderID,
			"org_sender_id":   m.OrganizationSenderID,
			"content":         m.Content,
			"message_type":    m.MessageType,
			"created_at":      m.CreatedAt,
			"seq":             m.Seq,
			"deleted_at":      m.DeletedAt,
		})
	}
	if _, err := r.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("archive messages: %w", err)
	}
	return nil
}

func (r *archiveRepository) CountForConversation(ctx context.Context, conversationID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
}
