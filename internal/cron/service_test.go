package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type testJob struct {
	name string
	rows int64
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) (int64, error) {
	t.runs++
	return t.rows, t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}}),
		Registry: registry,
		Lock:     lock,
	})
	require.NoError(t, err)
	return svc
}

func TestService_RunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	ok := &testJob{name: "ok", rows: 3}
	bad := &testJob{name: "bad", err: errors.New("boom")}
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	svc := newTestService(t, lock, ok, bad, after)

	err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, bad.runs)
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestService_RunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{held: true}
	svc := newTestService(t, lock, job)

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestService_RunOnceSelectsNamedJobs(t *testing.T) {
	a := &testJob{name: "a"}
	b := &testJob{name: "b"}
	svc := newTestService(t, &fakeLock{}, a, b)

	require.NoError(t, svc.RunOnce(context.Background(), "b"))
	assert.Zero(t, a.runs)
	assert.Equal(t, 1, b.runs)

	err := svc.RunOnce(context.Background(), "missing")
	assert.ErrorContains(t, err, "unknown cron job")
}

func TestService_RunOnceLockError(t *testing.T) {
	job := &testJob{name: "job"}
	svc := newTestService(t, &fakeLock{err: errors.New("redis down")}, job)

	err := svc.RunOnce(context.Background())
	assert.ErrorContains(t, err, "redis down")
	assert.Zero(t, job.runs)
}

func TestService_RunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	registry, err := NewRegistry(job)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{Output: &bytes.Buffer{}}),
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, job.runs, 2)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
