package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, prepareTime string) (*Service, *runnerFixture) {
	t.Helper()
	fx := newRunnerFixture(t, &fakeGateway{}, true)
	fx.runner.cfg.Trading.PrepareTime = prepareTime
	fx.runner.cfg.Trading.RecordTime = "15:10"

	log := fx.runner.logger
	return NewService(fx.runner, fx.status, fx.runner.cfg, log), fx
}

func TestStartRejectsBadClock(t *testing.T) {
	svc, _ := newTestService(t, "9am")

	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading")
}

func TestStartPublishesNextRun(t *testing.T) {
	svc, fx := newTestService(t, "09:25")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		st, ok := fx.status.Read()
		return ok && st.NextRunTime != ""
	}, 2*time.Second, 10*time.Millisecond, "next run time must be published at startup")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
