package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner executes a single sweep. *Engine implements it.
type Runner interface {
	Run(ctx context.Context, rule RuleID) (SweepResult, error)
}

// TimeOfDay is a wall-clock trigger time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Trigger is the cadence of one rule. With At set the rule fires daily at
// that wall-clock time in Location; otherwise it fires Every after the
// previous firing.
type Trigger struct {
	Rule     RuleID
	Every    time.Duration
	At       *TimeOfDay
	Location *time.Location
}

// Next returns the first firing strictly after now.
func (t Trigger) Next(now time.Time) time.Time {
	if t.At == nil {
		return now.Add(t.Every)
	}
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), t.At.Hour, t.At.Minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// MaxSweepInterval is the longest interval a rule may wait between runs;
// every rule fires at least once a day.
const MaxSweepInterval = 24 * time.Hour

func (t Trigger) Validate() error {
	if t.Rule.Position() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownRule, t.Rule)
	}
	if t.At == nil && t.Every <= 0 {
		return fmt.Errorf("trigger %s: needs a time of day or a positive interval", t.Rule)
	}
	if t.At == nil && t.Every > MaxSweepInterval {
		return fmt.Errorf("trigger %s: interval %s exceeds %s", t.Rule, t.Every, MaxSweepInterval)
	}
	if t.At != nil && (t.At.Hour < 0 || t.At.Hour > 23 || t.At.Minute < 0 || t.At.Minute > 59) {
		return fmt.Errorf("trigger %s: invalid time of day %s", t.Rule, t.At)
	}
	return nil
}

func (t Trigger) Cadence() string {
	if t.At != nil {
		loc := "UTC"
		if t.Location != nil {
			loc = t.Location.String()
		}
		return "daily at " + t.At.String() + " " + loc
	}
	return "every " + t.Every.String()
}

// RuleStatus is the scheduler's view of one rule.
type RuleStatus struct {
	Rule      RuleID       `json:"rule"`
	Order     int          `json:"order"`
	Cadence   string       `json:"cadence"`
	NextRun   time.Time    `json:"next_run"`
	LastRun   *SweepResult `json:"last_run,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	Runs      int          `json:"runs"`
}

// Scheduler owns one independent timer per rule. Rules share nothing but
// the runner's store and clock.
type Scheduler struct {
	runner   Runner
	clock    clockwork.Clock
	logger   *logrus.Logger
	triggers []Trigger

	mu     sync.RWMutex
	status map[RuleID]*RuleStatus
}

func NewScheduler(runner Runner, clock clockwork.Clock, logger *logrus.Logger, triggers ...Trigger) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scheduler{runner: runner, clock: clock, logger: logger, status: make(map[RuleID]*RuleStatus)}
	for _, t := range triggers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.status[t.Rule]; dup {
			return nil, fmt.Errorf("duplicate trigger for rule %s", t.Rule)
		}
		s.triggers = append(s.triggers, t)
		s.status[t.Rule] = &RuleStatus{Rule: t.Rule, Order: t.Rule.Position(), Cadence: t.Cadence()}
	}
	return s, nil
}

// Run blocks until ctx is cancelled. A sweep already in flight when ctx is
// cancelled runs to completion before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.triggers {
		t := t
		g.Go(func() error {
			s.loop(gctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Trigger) {
	for {
		now := s.clock.Now()
		next := t.Next(now)
		s.setNext(t.Rule, next)

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		s.fire(context.WithoutCancel(ctx), t.Rule)
	}
}

func (s *Scheduler) fire(ctx context.Context, rule RuleID) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.WithField("rule", rule).WithField("panic", p).Error("scheduled sweep panicked")
			s.record(rule, SweepResult{Rule: rule}, errors.New("sweep panicked"))
		}
	}()
	res, err := s.runner.Run(ctx, rule)
	if err != nil && !errors.Is(err, ErrLockHeld) {
		s.logger.WithError(err).WithField("rule", rule).Warn("scheduled sweep failed; retrying on next trigger")
	}
	s.record(rule, res, err)
}

func (s *Scheduler) setNext(rule RuleID, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[rule].NextRun = next
}

func (s *Scheduler) record(rule RuleID, res SweepResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[rule]
	st.Runs++
	st.LastRun = &res
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

// Status returns a snapshot ordered by rule position.
func (s *Scheduler) Status() []RuleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RuleStatus, 0, len(s.status))
	for _, id := range RuleOrder {
		if st, ok := s.status[id]; ok {
			cp := *st
			if st.LastRun != nil {
				lr := *st.LastRun
				cp.LastRun = &lr
			}
			out = append(out, cp)
		}
	}
	return out
}
