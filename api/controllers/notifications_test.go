package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	markReadFn    func(ctx context.Context, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context) (int64, error)
	archived      []uuid.UUID
	dismissed     []uuid.UUID
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) UnreadCount(ctx context.Context) (int64, error) {
	return 3, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx)
	}
	return 0, nil
}

func (s *testNotificationsService) Archive(ctx context.Context, notificationID uuid.UUID) error {
	s.archived = append(s.archived, notificationID)
	return nil
}

func (s *testNotificationsService) Dismiss(ctx context.Context, notificationID uuid.UUID) error {
	s.dismissed = append(s.dismissed, notificationID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.RouteContext(req.Context())
	if routeCtx == nil {
		routeCtx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	routeCtx.URLParams.Add(key, value)
	return req
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, nid uuid.UUID) error {
			called = true
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/notifications/"+notificationID.String()+"/read", nil)
	req = addRouteParam(req, "notificationId", notificationID.String())

	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data["read"] {
		t.Fatal("response missing read flag")
	}
}

func TestMarkNotificationReadInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/notifications/invalid/read", nil)
	req = addRouteParam(req, "notificationId", "invalid")
	resp := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, nid uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	req := addRouteParam(httptest.NewRequest(http.MethodPost, "/", nil), "notificationId", uuid.NewString())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestArchiveAndDismissNotification(t *testing.T) {
	svc := &testNotificationsService{}
	id := uuid.New()

	resp := httptest.NewRecorder()
	ArchiveNotification(svc, testLogger())(resp, addRouteParam(httptest.NewRequest(http.MethodPost, "/", nil), "notificationId", id.String()))
	if resp.Code != http.StatusOK || len(svc.archived) != 1 || svc.archived[0] != id {
		t.Fatalf("archive not applied: %d %v", resp.Code, svc.archived)
	}

	resp = httptest.NewRecorder()
	DismissNotification(svc, testLogger())(resp, addRouteParam(httptest.NewRequest(http.MethodPost, "/", nil), "notificationId", id.String()))
	if resp.Code != http.StatusOK || len(svc.dismissed) != 1 {
		t.Fatalf("dismiss not applied: %d %v", resp.Code, svc.dismissed)
	}
}

func TestMarkAllNotificationsReadSuccess(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context) (int64, error) { return 5, nil },
	}

	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, httptest.NewRequest(http.MethodPost, "/api/admin/v1/notifications/read-all", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["updated"] != 5 {
		t.Fatalf("unexpected count %d", envelope.Data["updated"])
	}
}

func TestListNotificationsPassesFilters(t *testing.T) {
	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{Cursor: "next"}, nil
		},
	}

	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/admin/v1/notifications?limit=10&status=unread&cursor=abc", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.Limit != 10 || got.Status != "unread" || got.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", got)
	}

	resp = httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/admin/v1/notifications?limit=0", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.Code)
	}
}

func TestUnreadNotificationCount(t *testing.T) {
	resp := httptest.NewRecorder()
	UnreadNotificationCount(&testNotificationsService{}, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["unread"] != 3 {
		t.Fatalf("unexpected unread count %v", envelope.Data)
	}
}
