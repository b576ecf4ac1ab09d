package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minqt/weight-sync/internal/broker"
	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/storage"
)

type fakeGateway struct {
	snapshot     *broker.AccountSnapshot
	snapshotErr  error
	connectErr   error
	connectCalls int
}

func (f *fakeGateway) Connect() error {
	f.connectCalls++
	return f.connectErr
}

func (f *fakeGateway) GetAccountSnapshot() (*broker.AccountSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeGateway) GetCurrentHoldings() (map[string]broker.PositionHolding, error) {
	return nil, nil
}

func (f *fakeGateway) GetQuotes([]string) (map[string]broker.Quote, error) { return nil, nil }

func (f *fakeGateway) SubmitOrder(string, broker.Side, int64, float64) (string, error) {
	return "", nil
}

func (f *fakeGateway) ListOpenOrders() ([]broker.OpenOrder, error) { return nil, nil }

func newTestRecorder(t *testing.T, gw broker.Gateway) (*Recorder, *storage.Repository) {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := storage.NewRepository(db)

	r := New(gw, repo, logger.New("error"))
	r.now = func() time.Time {
		return time.Date(2026, 3, 2, 15, 10, 0, 0, time.UTC)
	}
	return r, repo
}

func TestRecordStoresSnapshot(t *testing.T) {
	gw := &fakeGateway{snapshot: &broker.AccountSnapshot{
		TotalAsset:  1000000.456,
		Cash:        200000.123,
		MarketValue: 800000.333,
	}}
	r, repo := newTestRecorder(t, gw)

	require.NoError(t, r.Record(context.Background()))

	records, err := repo.ValueHistory(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "20260302", records[0].Date)
	assert.Equal(t, "15:10:00", records[0].Time)
	assert.Equal(t, 1000000.46, records[0].TotalAsset)
	assert.Equal(t, 200000.12, records[0].Cash)
	assert.Equal(t, 800000.33, records[0].MarketValue)
}

func TestRecordIsIdempotentPerDate(t *testing.T) {
	gw := &fakeGateway{snapshot: &broker.AccountSnapshot{TotalAsset: 1}}
	r, repo := newTestRecorder(t, gw)

	require.NoError(t, r.Record(context.Background()))
	require.NoError(t, r.Record(context.Background()))

	records, err := repo.ValueHistory(0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, gw.connectCalls, "second call must short-circuit before connecting")
}

func TestRecordFailsWhenBrokerUnreachable(t *testing.T) {
	gw := &fakeGateway{connectErr: errors.New("bridge down")}
	r, repo := newTestRecorder(t, gw)

	assert.Error(t, r.Record(context.Background()))

	records, err := repo.ValueHistory(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}
