package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notification-service/internal/model"
	"notification-service/internal/store"
)

// NotificationRepository is the PostgreSQL implementation of store.Store.
type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts one unread notification row. The unique index on
// (correlation_id, owner_user_id) turns repeated fan-out of the same event
// into store.ErrDuplicate instead of a second row.
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (int64, error) {
	r.logger.Debug("Inserting notification",
		zap.Int("owner_user_id", n.OwnerUserID),
		zap.String("type", n.Type),
		zap.String("correlation_id", n.CorrelationID),
	)

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
        INSERT INTO notifications (owner_user_id, type, title, message, payload, correlation_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (correlation_id, owner_user_id) DO NOTHING
        RETURNING id
    `
	var id int64
	err = r.db.QueryRow(ctx, query,
		n.OwnerUserID,
		n.Type,
		n.Title,
		n.Message,
		payload,
		n.CorrelationID,
		n.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrDuplicate
	}
	if err != nil {
		r.logger.Error("Failed to insert notification",
			zap.Int("owner_user_id", n.OwnerUserID),
			zap.Error(err),
		)
		return 0, err
	}

	r.logger.Info("Notification inserted successfully",
		zap.Int64("id", id),
		zap.Int("owner_user_id", n.OwnerUserID),
	)
	return id, nil
}

// MarkRead is scoped to the owner so one user cannot flip another's rows.
// Repeated calls are no-ops.
func (r *NotificationRepository) MarkRead(ctx context.Context, ownerUserID int, id int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND owner_user_id = $2`
	_, err := r.db.Exec(ctx, query, id, ownerUserID)
	return err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, ownerUserID int) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE owner_user_id = $1 AND is_read = FALSE`
	_, err := r.db.Exec(ctx, query, ownerUserID)
	return err
}

// List returns all rows owned by the user, newest first, plus the unread count.
func (r *NotificationRepository) List(ctx context.Context, ownerUserID int) ([]model.Notification, int, error) {
	query := `
        SELECT id, owner_user_id, type, title, message, payload, is_read, created_at, correlation_id
        FROM notifications
        WHERE owner_user_id = $1
        ORDER BY created_at DESC, id DESC
    `
	rows, err := r.db.Query(ctx, query, ownerUserID)
	if err != nil {
		r.logger.Error("Failed to list notifications",
			zap.Int("owner_user_id", ownerUserID),
			zap.Error(err),
		)
		return nil, 0, err
	}
	defer rows.Close()

	var result []model.Notification
	unread := 0
	for rows.Next() {
		var n model.Notification
		var payload []byte
		if err := rows.Scan(
			&n.ID,
			&n.OwnerUserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&payload,
			&n.IsRead,
			&n.CreatedAt,
			&n.CorrelationID,
		); err != nil {
			return nil, 0, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				r.logger.Warn("Failed to unmarshal notification payload",
					zap.Int64("id", n.ID),
					zap.Error(err),
				)
			}
		}
		if !n.IsRead {
			unread++
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, unread, nil
}
