package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const dedupConstraint = "uq_notifications_dedup"

var dedupColumns = []clause.Column{{Name: "target_type"}, {Name: "target_id"}, {Name: "type"}}

// Key is the de-duplication triple of a notification.
type Key struct {
	TargetType enums.NotificationTargetType
	TargetID   string
	Type       enums.NotificationType
}

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, notification *models.Notification) (*models.Notification, bool, error)
	FindByKey(ctx context.Context, key Key) (*models.Notification, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	Escalate(ctx context.Context, id uuid.UUID, priority enums.NotificationPriority, message string, data map[string]any) (bool, error)
	Reopen(ctx context.Context, id uuid.UUID, priority enums.NotificationPriority, message string, data map[string]any, now time.Time) (bool, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context) (int64, error)
	Transition(ctx context.Context, id uuid.UUID, to enums.NotificationStatus, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, now time.Time) (int64, error)
	ArchiveOlderThan(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

type listNotificationsParams struct {
	Limit  int
	Cursor *pagination.Cursor
	Status *enums.NotificationStatus
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// CreateIfAbsent inserts the row unless its dedup key already exists, in which
// case the stored row is returned with created=false. The insert and the
// uniqueness check are one statement.
func (r *repositoryImpl) CreateIfAbsent(ctx context.Context, notification *models.Notification) (*models.Notification, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: dedupColumns, DoNothing: true}).
		Create(notification)
	if result.Error != nil && !db.IsUniqueViolation(result.Error, dedupConstraint, "notifications.target_type") {
		return nil, false, result.Error
	}
	if result.Error == nil && result.RowsAffected == 1 {
		return notification, true, nil
	}

	existing, err := r.FindByKey(ctx, Key{
		TargetType: notification.TargetType,
		TargetID:   notification.TargetID,
		Type:       notification.Type,
	})
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repositoryImpl) FindByKey(ctx context.Context, key Key) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND type = ?", key.TargetType, key.TargetID, key.Type).
		First(&notification).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

// Escalate raises the stored priority when the given one outranks it. The
// guard lives in the WHERE clause so concurrent escalations cannot lower it.
func (r *repositoryImpl) Escalate(ctx context.Context, id uuid.UUID, priority enums.NotificationPriority, message string, data map[string]any) (bool, error) {
	lower := make([]enums.NotificationPriority, 0, 3)
	for _, p := range []enums.NotificationPriority{
		enums.NotificationPriorityLow,
		enums.NotificationPriorityNormal,
		enums.NotificationPriorityHigh,
		enums.NotificationPriorityUrgent,
	} {
		if priority.Outranks(p) {
			lower = append(lower, p)
		}
	}
	if len(lower) == 0 {
		return false, nil
	}

	updates := map[string]any{
		"priority":   priority,
		"message":    message,
		"updated_at": time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return false, err
		}
		updates["data"] = string(raw)
	}
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND priority IN ?", id, lower).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Reopen turns a handled notification back into an unread one carrying the
// new priority and content. It reports false when the row is already unread.
func (r *repositoryImpl) Reopen(ctx context.Context, id uuid.UUID, priority enums.NotificationPriority, message string, data map[string]any, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":       enums.NotificationStatusUnread,
		"priority":     priority,
		"message":      message,
		"read_at":      nil,
		"archived_at":  nil,
		"dismissed_at": nil,
		"created_at":   now,
		"updated_at":   now,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return false, err
		}
		updates["data"] = string(raw)
	}
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND status <> ?", id, enums.NotificationStatusUnread).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.FetchLimit(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) CountUnread(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("status = ?", enums.NotificationStatusUnread).
		Count(&count).Error
	return count, err
}

// Transition moves a notification into status `to`, stamping the matching
// timestamp column. Moving into the current status is a no-op.
func (r *repositoryImpl) Transition(ctx context.Context, id uuid.UUID, to enums.NotificationStatus, now time.Time) (notificationMarkResult, error) {
	updates := map[string]any{"status": to, "updated_at": now}
	switch to {
	case enums.NotificationStatusRead:
		updates["read_at"] = now
	case enums.NotificationStatusArchived:
		updates["archived_at"] = now
	case enums.NotificationStatusDismissed:
		updates["dismissed_at"] = now
	}

	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND status <> ?", id, to).
		Updates(updates)
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if mark.Updated {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("status = ?", enums.NotificationStatusUnread).
		Updates(map[string]any{"status": enums.NotificationStatusRead, "read_at": now, "updated_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ArchiveOlderThan archives read and dismissed notifications created before
// cutoff. Rows are never deleted.
func (r *repositoryImpl) ArchiveOlderThan(ctx context.Context, cutoff, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("status IN ? AND created_at < ?",
			[]enums.NotificationStatus{enums.NotificationStatusRead, enums.NotificationStatusDismissed}, cutoff).
		Updates(map[string]any{"status": enums.NotificationStatusArchived, "archived_at": now, "updated_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
