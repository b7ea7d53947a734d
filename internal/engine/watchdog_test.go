package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asanatap/internal/source"
	"github.com/roach88/asanatap/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var epoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestWatchdog(cred Refresher, clock Clock, opts ...WatchdogOption) *Watchdog {
	opts = append([]WatchdogOption{WithWatchdogLogger(discard)}, opts...)
	return NewWatchdog(cred, clock, opts...)
}

func TestWatchdog_CallBudget(t *testing.T) {
	cred := &testutil.FakeCredential{}
	wd := newTestWatchdog(cred, testutil.NewFakeClock(epoch), WithMaxCalls(5))

	call := 0
	var refreshedBefore []int
	cred.OnRefresh = func(int) { refreshedBefore = append(refreshedBefore, call+1) }

	for i := 0; i < 12; i++ {
		err := wd.Call(context.Background(), func(context.Context) error {
			call++
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []int{6, 11}, refreshedBefore)
	assert.Equal(t, 2, wd.Refreshes())
	assert.Equal(t, 2, wd.Calls())
	assert.Equal(t, 12, wd.TotalCalls())
}

func TestWatchdog_AgeBudget(t *testing.T) {
	cred := &testutil.FakeCredential{}
	clock := testutil.NewFakeClock(epoch)
	wd := newTestWatchdog(cred, clock, WithMaxCalls(1000), WithMaxAge(30*time.Minute))
	ctx := context.Background()

	clock.Advance(30 * time.Minute)
	require.NoError(t, wd.Check(ctx))
	assert.Equal(t, 0, cred.Refreshes(), "budget is exceeded only strictly")

	clock.Advance(time.Second)
	require.NoError(t, wd.Check(ctx))
	assert.Equal(t, 1, cred.Refreshes())

	// Reference time was reset by the refresh.
	clock.Advance(29 * time.Minute)
	require.NoError(t, wd.Check(ctx))
	assert.Equal(t, 1, cred.Refreshes())
}

func TestWatchdog_StartAlwaysRefreshes(t *testing.T) {
	cred := &testutil.FakeCredential{}
	wd := newTestWatchdog(cred, testutil.NewFakeClock(epoch))

	require.NoError(t, wd.Start(context.Background()))
	require.NoError(t, wd.Start(context.Background()))
	assert.Equal(t, 2, cred.Refreshes())
}

func TestWatchdog_AuthExpiredRetriesOnce(t *testing.T) {
	cred := &testutil.FakeCredential{}
	wd := newTestWatchdog(cred, testutil.NewFakeClock(epoch), WithMaxCalls(100))

	attempts := 0
	err := wd.Call(context.Background(), func(context.Context) error {
		attempts++
		if attempts == 1 {
			return source.NewError(source.KindAuthExpired, "GET workspaces", 401, nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, cred.Refreshes())
}

func TestWatchdog_AuthExpiredTwiceGivesUp(t *testing.T) {
	cred := &testutil.FakeCredential{}
	wd := newTestWatchdog(cred, testutil.NewFakeClock(epoch), WithMaxCalls(100))

	attempts := 0
	err := wd.Call(context.Background(), func(context.Context) error {
		attempts++
		return source.NewError(source.KindAuthExpired, "GET workspaces", 401, nil)
	})

	require.Error(t, err)
	assert.True(t, source.IsAuthExpired(err))
	assert.Equal(t, 2, attempts, "exactly one retry")
	assert.Equal(t, 1, cred.Refreshes())
}

func TestWatchdog_OtherErrorsNotRetried(t *testing.T) {
	cred := &testutil.FakeCredential{}
	wd := newTestWatchdog(cred, testutil.NewFakeClock(epoch))

	attempts := 0
	err := wd.Call(context.Background(), func(context.Context) error {
		attempts++
		return source.NewError(source.KindTransient, "GET tags", 503, nil)
	})

	assert.True(t, source.IsTransient(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 0, cred.Refreshes())
}

func TestWatchdog_RefreshFailure(t *testing.T) {
	cred := &testutil.FakeCredential{}
	cred.FailWith(errors.New("invalid_grant"))
	wd := newTestWatchdog(cred, testutil.NewFakeClock(epoch))

	err := wd.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRefreshError(err))

	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "pass start", re.Reason)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestWatchdog_OptionsIgnoreInvalid(t *testing.T) {
	wd := newTestWatchdog(&testutil.FakeCredential{}, nil, WithMaxCalls(0), WithMaxAge(-time.Second))
	assert.Equal(t, DefaultMaxCalls, wd.maxCalls)
	assert.Equal(t, DefaultMaxAge, wd.maxAge)
}
