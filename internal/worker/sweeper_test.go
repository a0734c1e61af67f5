package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"cinema-reservation/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockHoldSweeper struct {
	mock.Mock
}

func (m *mockHoldSweeper) ExpireHolds(ctx context.Context) (*usecase.SweepResult, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*usecase.SweepResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type panicSweeper struct{}

func (panicSweeper) ExpireHolds(context.Context) (*usecase.SweepResult, error) {
	panic("boom")
}

type staticLease struct {
	leader bool
	err    error
}

func (l staticLease) Acquire(context.Context) (bool, error) { return l.leader, l.err }
func (l staticLease) Release(context.Context) error         { return nil }

func TestExpirySweeper_RunOnceAccumulatesStats(t *testing.T) {
	sweeper := new(mockHoldSweeper)
	sweeper.On("ExpireHolds", mock.Anything).Return(&usecase.SweepResult{Holds: 3, Payments: 1}, nil).Twice()

	w := NewExpirySweeper(sweeper, nil, &SweeperConfig{Interval: time.Minute}, zap.NewNop())
	w.RunOnce(context.Background())
	w.RunOnce(context.Background())

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(6), stats.ExpiredHolds)
	assert.Equal(t, int64(2), stats.ExpiredPayments)
	assert.Empty(t, stats.LastError)
	sweeper.AssertExpectations(t)
}

func TestExpirySweeper_ErrorDoesNotStopNextRun(t *testing.T) {
	sweeper := new(mockHoldSweeper)
	sweeper.On("ExpireHolds", mock.Anything).Return(nil, errors.New("connection reset")).Once()
	sweeper.On("ExpireHolds", mock.Anything).Return(&usecase.SweepResult{Holds: 1}, nil).Once()

	w := NewExpirySweeper(sweeper, nil, nil, zap.NewNop())

	w.RunOnce(context.Background())
	assert.Equal(t, "connection reset", w.Stats().LastError)

	w.RunOnce(context.Background())
	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(1), stats.ExpiredHolds)
	assert.Empty(t, stats.LastError)
}

func TestExpirySweeper_RecoversPanic(t *testing.T) {
	w := NewExpirySweeper(panicSweeper{}, nil, nil, zap.NewNop())

	assert.NotPanics(t, func() { w.RunOnce(context.Background()) })
	assert.Contains(t, w.Stats().LastError, "boom")
}

func TestExpirySweeper_SkipsWithoutLease(t *testing.T) {
	sweeper := new(mockHoldSweeper)

	w := NewExpirySweeper(sweeper, staticLease{leader: false}, nil, zap.NewNop())
	w.RunOnce(context.Background())

	w2 := NewExpirySweeper(sweeper, staticLease{err: errors.New("redis down")}, nil, zap.NewNop())
	w2.RunOnce(context.Background())

	assert.Equal(t, int64(1), w.Stats().Skipped)
	assert.Equal(t, int64(1), w2.Stats().Skipped)
	sweeper.AssertNotCalled(t, "ExpireHolds", mock.Anything)
}

func TestExpirySweeper_StartRunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	sweeper := new(mockHoldSweeper)
	sweeper.On("ExpireHolds", mock.Anything).
		Return(&usecase.SweepResult{}, nil).
		Run(func(mock.Arguments) {
			select {
			case ran <- struct{}{}:
			default:
			}
		})

	w := NewExpirySweeper(sweeper, staticLease{leader: true}, &SweeperConfig{Interval: time.Hour}, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start must fail")

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run on start")
	}

	w.Stop()
	assert.False(t, w.Stats().IsRunning)
	w.Stop()
}
