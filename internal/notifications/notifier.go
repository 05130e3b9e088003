package notifications

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Realtime event names pushed to operator sessions.
const (
	EventCreated     = "notification.created"
	EventUpdated     = "notification.updated"
	EventUnreadCount = "notification.unread_count"
)

// Outcome reports what Notify did with a draft.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeReopened  Outcome = "reopened"
	OutcomeFailed    Outcome = "failed"
)

// Hub delivers events to connected operator sessions and reports how many
// sessions accepted the event.
type Hub interface {
	Broadcast(ctx context.Context, eventType string, payload any) int
}

// Draft describes a notification before it is persisted.
type Draft struct {
	TargetType enums.NotificationTargetType `validate:"required"`
	TargetID   string                       `validate:"required,max=128"`
	Type       enums.NotificationType       `validate:"required"`
	Priority   enums.NotificationPriority
	Title      string `validate:"required,max=200"`
	Message    string `validate:"required"`
	Link       *string
	Data       map[string]any
	// Rearm reopens a stored notification that operators already read,
	// archived or dismissed, instead of treating the draft as a duplicate.
	Rearm bool
}

// Key returns the de-duplication triple of the draft.
func (d Draft) Key() Key {
	return Key{TargetType: d.TargetType, TargetID: d.TargetID, Type: d.Type}
}

// Result is the outcome of a single Notify call.
type Result struct {
	Notification *models.Notification
	Outcome      Outcome
	Err          error
	// Escalated is set when a duplicate raised the stored priority.
	Escalated bool
}

// UnreadCountPayload is pushed after every newly created notification.
type UnreadCountPayload struct {
	Unread int64 `json:"unread"`
}

// Notifier persists notifications exactly once per key and fans them out to
// the realtime hub.
type Notifier struct {
	repo        Repository
	hub         Hub
	logg        *logger.Logger
	metrics     *metrics.PipelineMetrics
	validate    *validator.Validate
	pushTimeout time.Duration
}

// NotifierParams wires a Notifier. Hub and Metrics are optional.
type NotifierParams struct {
	Repository  Repository
	Hub         Hub
	Logger      *logger.Logger
	Metrics     *metrics.PipelineMetrics
	PushTimeout time.Duration
}

// NewNotifier validates dependencies and returns a Notifier.
func NewNotifier(params NotifierParams) (*Notifier, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.PushTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Notifier{
		repo:        params.Repository,
		hub:         params.Hub,
		logg:        logg,
		metrics:     params.Metrics,
		validate:    validator.New(),
		pushTimeout: timeout,
	}, nil
}

// Notify stores the draft unless an equivalent notification exists, then
// pushes it to operator sessions when it was newly created. Push failures
// never affect the stored row.
func (n *Notifier) Notify(ctx context.Context, draft Draft) Result {
	if draft.Priority == "" {
		draft.Priority = enums.NotificationPriorityNormal
	}
	if err := n.validateDraft(draft); err != nil {
		n.metrics.IncNotification(string(draft.Type), string(OutcomeFailed))
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	row := &models.Notification{
		TargetType: draft.TargetType,
		TargetID:   draft.TargetID,
		Type:       draft.Type,
		Priority:   draft.Priority,
		Status:     enums.NotificationStatusUnread,
		Title:      draft.Title,
		Message:    draft.Message,
		Link:       draft.Link,
		Data:       draft.Data,
	}
	stored, created, err := n.repo.CreateIfAbsent(ctx, row)
	if err != nil {
		n.metrics.IncNotification(string(draft.Type), string(OutcomeFailed))
		n.logg.Error(n.logCtx(ctx, draft), "notification persist failed", err)
		return Result{Outcome: OutcomeFailed, Err: pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist notification")}
	}

	if !created {
		if draft.Rearm && stored.Status != enums.NotificationStatusUnread && n.reopen(ctx, stored, draft) {
			n.metrics.IncNotification(string(draft.Type), string(OutcomeReopened))
			n.push(ctx, EventCreated, stored)
			n.pushUnreadCount(ctx)
			return Result{Notification: stored, Outcome: OutcomeReopened}
		}
		n.metrics.IncNotification(string(draft.Type), string(OutcomeDuplicate))
		result := Result{Notification: stored, Outcome: OutcomeDuplicate}
		if draft.Priority.Outranks(stored.Priority) {
			result.Escalated = n.escalate(ctx, stored, draft)
		}
		return result
	}

	n.metrics.IncNotification(string(draft.Type), string(OutcomeCreated))
	n.push(ctx, EventCreated, stored)
	n.pushUnreadCount(ctx)
	return Result{Notification: stored, Outcome: OutcomeCreated}
}

func (n *Notifier) validateDraft(draft Draft) error {
	if err := n.validate.Struct(draft); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification draft")
	}
	if !draft.TargetType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid notification target type %q", draft.TargetType)
	}
	if !draft.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid notification type %q", draft.Type)
	}
	if !draft.Priority.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid notification priority %q", draft.Priority)
	}
	return nil
}

func (n *Notifier) escalate(ctx context.Context, stored *models.Notification, draft Draft) bool {
	ok, err := n.repo.Escalate(ctx, stored.ID, draft.Priority, draft.Message, draft.Data)
	if err != nil {
		n.logg.Error(n.logCtx(ctx, draft), "notification escalation failed", err)
		return false
	}
	if !ok {
		return false
	}
	stored.Priority = draft.Priority
	stored.Message = draft.Message
	if draft.Data != nil {
		stored.Data = draft.Data
	}
	n.push(ctx, EventUpdated, stored)
	return true
}

func (n *Notifier) reopen(ctx context.Context, stored *models.Notification, draft Draft) bool {
	now := time.Now().UTC()
	ok, err := n.repo.Reopen(ctx, stored.ID, draft.Priority, draft.Message, draft.Data, now)
	if err != nil {
		n.logg.Error(n.logCtx(ctx, draft), "notification reopen failed", err)
		return false
	}
	if !ok {
		return false
	}
	stored.Status = enums.NotificationStatusUnread
	stored.Priority = draft.Priority
	stored.Message = draft.Message
	stored.ReadAt, stored.ArchivedAt, stored.DismissedAt = nil, nil, nil
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if draft.Data != nil {
		stored.Data = draft.Data
	}
	return true
}

func (n *Notifier) pushUnreadCount(ctx context.Context) {
	if n.hub == nil {
		return
	}
	count, err := n.repo.CountUnread(ctx)
	if err != nil {
		n.logg.Error(ctx, "unread count lookup failed", err)
		return
	}
	n.push(ctx, EventUnreadCount, UnreadCountPayload{Unread: count})
}

func (n *Notifier) push(ctx context.Context, eventType string, payload any) {
	if n.hub == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.pushTimeout)
	defer cancel()
	delivered := n.hub.Broadcast(pushCtx, eventType, payload)
	n.logg.Debug(n.logg.WithFields(ctx, map[string]any{
		"event":     eventType,
		"delivered": delivered,
	}), "realtime push")
}

func (n *Notifier) logCtx(ctx context.Context, draft Draft) context.Context {
	return n.logg.WithFields(ctx, map[string]any{
		"notification_type": string(draft.Type),
		"target_type":       string(draft.TargetType),
		"target_id":         draft.TargetID,
	})
}
