package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/textswap/internal/domain"
	"github.com/vedran77/textswap/internal/repository"
)

const conversationColumns = `id, participant1_id, participant2_id, last_message, last_message_at, post_id, created_at`

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// CreateIfAbsent relies on the primary key: the losing racer's insert is a
// no-op and both callers read back the same row.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	query := `
		INSERT INTO conversations (id, participant1_id, participant2_id, post_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, conv.ID, conv.Participant1ID, conv.Participant2ID, conv.PostID)
	if err != nil {
		return nil, false, translate("creating conversation", "conversation", conv.ID, err)
	}

	stored, err := r.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate("getting conversation", "conversation", id, err)
	}
	return conv, nil
}

func (r *ConversationRepo) ListByParticipant(ctx context.Context, slot repository.ParticipantSlot, userID string) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE participant1_id = $1`
	if slot == repository.SecondParticipant {
		query = `SELECT ` + conversationColumns + ` FROM conversations WHERE participant2_id = $1`
	}

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, translate("listing conversations", "user", userID, err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, translate("scanning conversation", "user", userID, err)
		}
		convs = append(convs, *conv)
	}
	return convs, translate("listing conversations", "user", userID, rows.Err())
}

// RecordMessage never moves the summary backwards.
func (r *ConversationRepo) RecordMessage(ctx context.Context, id, text string, ts time.Time) error {
	query := `
		UPDATE conversations
		SET last_message = $2, last_message_at = $3
		WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $3)`

	tag, err := r.pool.Exec(ctx, query, id, text, ts)
	if err != nil {
		return translate("recording message", "conversation", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either a newer message already won or the row is missing.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := row.Scan(
		&conv.ID, &conv.Participant1ID, &conv.Participant2ID,
		&conv.LastMessage, &conv.LastMessageTimestamp, &conv.PostID, &conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
