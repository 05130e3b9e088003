package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Notification is an operator-facing alert. (target_type, target_id, type)
// identifies one logical event.
type Notification struct {
	ID          uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	TargetType  enums.NotificationTargetType `gorm:"column:target_type;not null;uniqueIndex:uq_notifications_dedup,priority:1"`
	TargetID    string                       `gorm:"column:target_id;not null;uniqueIndex:uq_notifications_dedup,priority:2"`
	Type        enums.NotificationType       `gorm:"column:type;type:notification_type;not null;uniqueIndex:uq_notifications_dedup,priority:3"`
	Priority    enums.NotificationPriority   `gorm:"column:priority;not null;default:'normal'"`
	Status      enums.NotificationStatus     `gorm:"column:status;not null;default:'unread'"`
	Title       string                       `gorm:"column:title;not null"`
	Message     string                       `gorm:"column:message;not null"`
	Link        *string                      `gorm:"column:link"`
	Data        map[string]any               `gorm:"column:data;type:jsonb;serializer:json"`
	ReadAt      *time.Time                   `gorm:"column:read_at"`
	ArchivedAt  *time.Time                   `gorm:"column:archived_at"`
	DismissedAt *time.Time                   `gorm:"column:dismissed_at"`
	CreatedAt   time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
