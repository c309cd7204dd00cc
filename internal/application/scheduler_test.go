package application_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

type fakeRunner struct {
	started chan application.RuleID
	release chan struct{}
	err     error

	mu      sync.Mutex
	ctxErrs []error
}

func newFakeRunner(blocking bool) *fakeRunner {
	r := &fakeRunner{started: make(chan application.RuleID, 16)}
	if blocking {
		r.release = make(chan struct{})
	}
	return r
}

func (r *fakeRunner) Run(ctx context.Context, rule application.RuleID) (application.SweepResult, error) {
	r.started <- rule
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()
	return application.SweepResult{Rule: rule, Applied: 1}, r.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func waitStarted(t *testing.T, r *fakeRunner) application.RuleID {
	t.Helper()
	select {
	case rule := <-r.started:
		return rule
	case <-time.After(2 * time.Second):
		t.Fatal("sweep was not started")
		return ""
	}
}

func TestTriggerNextDaily(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	tr := application.Trigger{Rule: application.RuleDemoteDormant, At: &application.TimeOfDay{Hour: 3}, Location: seoul}

	// 18:00 in Seoul: today's slot has passed
	next := tr.Next(time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, time.June, 16, 3, 0, 0, 0, seoul), next)

	// 02:00 in Seoul: today's slot is still ahead
	next = tr.Next(time.Date(2025, time.June, 14, 17, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, time.June, 15, 3, 0, 0, 0, seoul), next)

	exact := time.Date(2025, time.June, 15, 3, 0, 0, 0, seoul)
	assert.Equal(t, exact.AddDate(0, 0, 1), tr.Next(exact))
	assert.Equal(t, "daily at 03:00 Asia/Seoul", tr.Cadence())
}

func TestTriggerNextInterval(t *testing.T) {
	tr := application.Trigger{Rule: application.RuleDormancyNotice, Every: time.Hour}
	now := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), tr.Next(now))
	assert.Equal(t, "every 1h0m0s", tr.Cadence())
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := application.ParseTimeOfDay("04:30")
	require.NoError(t, err)
	assert.Equal(t, application.TimeOfDay{Hour: 4, Minute: 30}, tod)
	assert.Equal(t, "04:30", tod.String())

	_, err = application.ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestNewSchedulerRejectsBadTriggers(t *testing.T) {
	r := newFakeRunner(false)
	_, err := application.NewScheduler(r, nil, quietLogger(), application.Trigger{Rule: "nope", Every: time.Hour})
	assert.ErrorIs(t, err, application.ErrUnknownRule)

	_, err = application.NewScheduler(r, nil, quietLogger(), application.Trigger{Rule: application.RuleAnonymize})
	assert.Error(t, err)

	_, err = application.NewScheduler(r, nil, quietLogger(),
		application.Trigger{Rule: application.RuleAnonymize, Every: application.MaxSweepInterval + time.Minute})
	assert.ErrorContains(t, err, "exceeds")

	_, err = application.NewScheduler(r, nil, quietLogger(),
		application.Trigger{Rule: application.RuleAnonymize, Every: time.Hour},
		application.Trigger{Rule: application.RuleAnonymize, Every: 2 * time.Hour},
	)
	assert.Error(t, err)
}

func TestSchedulerFiresEachRuleIndependently(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC))
	r := newFakeRunner(false)
	r.err = errors.New("boom")
	s, err := application.NewScheduler(r, clock, quietLogger(),
		application.Trigger{Rule: application.RuleExpirePending, Every: time.Hour},
		application.Trigger{Rule: application.RuleDormancyNotice, Every: 3 * time.Hour},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))

	clock.Advance(time.Hour)
	assert.Equal(t, application.RuleExpirePending, waitStarted(t, r))

	// the failed sweep is retried on its next trigger
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))
	clock.Advance(time.Hour)
	assert.Equal(t, application.RuleExpirePending, waitStarted(t, r))

	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))
	clock.Advance(time.Hour)
	fired := []application.RuleID{waitStarted(t, r), waitStarted(t, r)}
	assert.ElementsMatch(t, []application.RuleID{application.RuleExpirePending, application.RuleDormancyNotice}, fired)

	require.Eventually(t, func() bool {
		for _, st := range s.Status() {
			if st.Rule == application.RuleDormancyNotice && st.Runs == 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, application.RuleExpirePending, status[0].Rule)
	assert.Equal(t, 1, status[0].Order)
	assert.Equal(t, "boom", status[1].LastError)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerLetsInFlightSweepFinish(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC))
	r := newFakeRunner(true)
	s, err := application.NewScheduler(r, clock, quietLogger(),
		application.Trigger{Rule: application.RuleDeleteDormant, Every: time.Minute},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(time.Minute)
	waitStarted(t, r)

	cancel()
	select {
	case <-done:
		t.Fatal("scheduler returned while a sweep was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(r.release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.ctxErrs, 1)
	assert.NoError(t, r.ctxErrs[0], "in-flight sweep must not observe shutdown")
}
