package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOrderPlaced      NotificationType = "order_placed"
	NotificationTypeOrderNeedsReview NotificationType = "order_needs_review"
	NotificationTypeLowStock         NotificationType = "low_stock"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderPlaced,
	NotificationTypeOrderNeedsReview,
	NotificationTypeLowStock,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationTargetType names the entity a notification is about.
type NotificationTargetType string

const (
	NotificationTargetOrder   NotificationTargetType = "order"
	NotificationTargetProduct NotificationTargetType = "product"
)

var validNotificationTargetTypes = []NotificationTargetType{
	NotificationTargetOrder,
	NotificationTargetProduct,
}

func (n NotificationTargetType) IsValid() bool {
	for _, candidate := range validNotificationTargetTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// NotificationStatus is the operator-facing lifecycle of a notification.
type NotificationStatus string

const (
	NotificationStatusUnread    NotificationStatus = "unread"
	NotificationStatusRead      NotificationStatus = "read"
	NotificationStatusArchived  NotificationStatus = "archived"
	NotificationStatusDismissed NotificationStatus = "dismissed"
)

var validNotificationStatuses = []NotificationStatus{
	NotificationStatusUnread,
	NotificationStatusRead,
	NotificationStatusArchived,
	NotificationStatusDismissed,
}

func (n NotificationStatus) IsValid() bool {
	for _, candidate := range validNotificationStatuses {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationStatus converts raw strings into NotificationStatus.
func ParseNotificationStatus(value string) (NotificationStatus, error) {
	for _, candidate := range validNotificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification status %q", value)
}

// NotificationPriority orders alerts by urgency.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

var notificationPriorityRank = map[NotificationPriority]int{
	NotificationPriorityLow:    1,
	NotificationPriorityNormal: 2,
	NotificationPriorityHigh:   3,
	NotificationPriorityUrgent: 4,
}

func (p NotificationPriority) IsValid() bool {
	_, ok := notificationPriorityRank[p]
	return ok
}

// Rank returns 0 for unknown priorities.
func (p NotificationPriority) Rank() int {
	return notificationPriorityRank[p]
}

// Outranks reports whether p is strictly more urgent than other.
func (p NotificationPriority) Outranks(other NotificationPriority) bool {
	return p.Rank() > other.Rank()
}
