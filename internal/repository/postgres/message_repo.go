package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/textswap/internal/domain"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, text, sent_at, is_read`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append locks the conversation row and the receiver's inbox so concurrent
// senders get strictly increasing timestamps within one conversation and
// within one receiver's unread stream.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var convID string
		if err := tx.QueryRow(ctx,
			`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID,
		).Scan(&convID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext('inbox:' || $1))`, msg.ReceiverID,
		); err != nil {
			return err
		}

		query := `
			INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, sent_at, is_read)
			VALUES ($1, $2, $3, $4, $5,
				GREATEST(
					clock_timestamp(),
					(SELECT MAX(sent_at) FROM messages WHERE conversation_id = $2) + interval '1 microsecond',
					(SELECT MAX(sent_at) FROM messages WHERE receiver_id = $4) + interval '1 microsecond'
				),
				false)
			RETURNING sent_at, is_read`
		return tx.QueryRow(ctx, query,
			msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Text,
		).Scan(&msg.Timestamp, &msg.IsRead)
	})
	return translate("appending message", "conversation", msg.ConversationID, err)
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY sent_at, id`
	return r.query(ctx, "listing messages", conversationID, query, conversationID)
}

// MarkRead is a single UPDATE, so the batch is applied entirely or not at all.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string) (int, error) {
	query := `
		UPDATE messages SET is_read = true
		WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read`

	tag, err := r.pool.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, translate("marking messages read", "conversation", conversationID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *MessageRepo) ListUnread(ctx context.Context, receiverID string, since *time.Time) ([]domain.Message, error) {
	if since == nil {
		query := `SELECT ` + messageColumns + ` FROM messages
			WHERE receiver_id = $1 AND NOT is_read ORDER BY sent_at, id`
		return r.query(ctx, "listing unread", receiverID, query, receiverID)
	}
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE receiver_id = $1 AND NOT is_read AND sent_at >= $2 ORDER BY sent_at, id`
	return r.query(ctx, "listing unread", receiverID, query, receiverID, *since)
}

func (r *MessageRepo) query(ctx context.Context, op, id, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(op, "conversation", id, err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Text, &msg.Timestamp, &msg.IsRead,
		); err != nil {
			return nil, translate(op, "conversation", id, err)
		}
		messages = append(messages, msg)
	}
	return messages, translate(op, "conversation", id, rows.Err())
}
