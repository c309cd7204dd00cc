package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/lifecycle"
	repo "github.com/oksasatya/account-lifecycle/internal/domain/repository"
)

// SweepResult summarises one execution of a rule.
type SweepResult struct {
	Rule       RuleID        `json:"rule"`
	At         time.Time     `json:"at"`
	Threshold  time.Time     `json:"threshold"`
	Candidates int           `json:"candidates"`
	Applied    int           `json:"applied"`
	Skipped    int           `json:"skipped"`
	Invalid    int           `json:"invalid"`
	Failed     int           `json:"failed"`
	LockHeld   bool          `json:"lock_held,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// CycleResult holds the outcome of every rule of one ordered cycle.
type CycleResult struct {
	At      time.Time        `json:"at"`
	Results []SweepResult    `json:"results"`
	Errors  map[RuleID]error `json:"-"`
}

func (c CycleResult) Err(rule RuleID) error { return c.Errors[rule] }

type EngineDeps struct {
	Store    repo.AccountRepository
	Ledger   repo.NoticeLedger
	Notifier NotificationGateway
	Index    SearchIndex // optional
	Avatars  AvatarStore // optional
	Locker   Locker      // optional
	Clock    clockwork.Clock
	Logger   *logrus.Logger
	Metrics  *Metrics // optional
}

type EngineOptions struct {
	Policy        lifecycle.Policy
	OpTimeout     time.Duration
	NotifyTimeout time.Duration
	LockTTL       time.Duration
	// Location is the zone in which calendar days are cut for the notice
	// ledger. Nil keeps the clock's own zone.
	Location *time.Location
	// NewToken supplies the random part of anonymized emails.
	NewToken func() string
}

type sweepFunc func(ctx context.Context, now time.Time, res *SweepResult) error

// Engine evaluates lifecycle rules against the account store.
type Engine struct {
	store    repo.AccountRepository
	ledger   repo.NoticeLedger
	notifier NotificationGateway
	index    SearchIndex
	avatars  AvatarStore
	locker   Locker
	clock    clockwork.Clock
	logger   *logrus.Logger
	metrics  *Metrics

	policy        lifecycle.Policy
	opTimeout     time.Duration
	notifyTimeout time.Duration
	lockTTL       time.Duration
	loc           *time.Location
	newToken      func() string

	sweeps map[RuleID]sweepFunc
}

func NewEngine(deps EngineDeps, opts EngineOptions) *Engine {
	e := &Engine{
		store:         deps.Store,
		ledger:        deps.Ledger,
		notifier:      deps.Notifier,
		index:         deps.Index,
		avatars:       deps.Avatars,
		locker:        deps.Locker,
		clock:         deps.Clock,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		policy:        opts.Policy,
		opTimeout:     opts.OpTimeout,
		notifyTimeout: opts.NotifyTimeout,
		lockTTL:       opts.LockTTL,
		loc:           opts.Location,
		newToken:      opts.NewToken,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.logger == nil {
		e.logger = logrus.New()
	}
	if e.opTimeout <= 0 {
		e.opTimeout = 30 * time.Second
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = 10 * time.Second
	}
	if e.lockTTL <= 0 {
		e.lockTTL = 10 * time.Minute
	}
	if e.newToken == nil {
		e.newToken = uuid.NewString
	}
	e.sweeps = map[RuleID]sweepFunc{
		RuleExpirePending:  e.expirePending,
		RuleDemoteDormant:  e.demoteDormant,
		RuleDeleteDormant:  e.deleteDormant,
		RulePurgeDeleted:   e.purgeDeleted,
		RuleAnonymize:      e.anonymize,
		RuleDormancyNotice: e.dormancyNotice,
	}
	return e
}

func (e *Engine) Policy() lifecycle.Policy { return e.policy }

// Run executes one sweep of rule at the current clock time.
func (e *Engine) Run(ctx context.Context, rule RuleID) (SweepResult, error) {
	return e.runAt(ctx, rule, e.now())
}

// RunCycle executes every rule once in RuleOrder against a single instant.
// A failing rule is recorded and the cycle continues with the next one.
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	now := e.now()
	out := CycleResult{At: now, Errors: make(map[RuleID]error)}
	for _, rule := range RuleOrder {
		res, err := e.runAt(ctx, rule, now)
		out.Results = append(out.Results, res)
		if err != nil {
			out.Errors[rule] = err
		}
	}
	return out
}

func (e *Engine) now() time.Time {
	if e.loc != nil {
		return e.clock.Now().In(e.loc)
	}
	return e.clock.Now()
}

func (e *Engine) runAt(ctx context.Context, rule RuleID, now time.Time) (res SweepResult, err error) {
	res = SweepResult{Rule: rule, At: now}
	sweep, ok := e.sweeps[rule]
	if !ok {
		return res, ErrUnknownRule
	}
	// A started sweep runs to completion; each store call stays bounded by opTimeout.
	ctx = context.WithoutCancel(ctx)

	if e.locker != nil {
		lease, lerr := e.locker.Acquire(ctx, LockKey(rule), e.lockTTL)
		if errors.Is(lerr, ErrLockHeld) {
			res.LockHeld = true
			if e.metrics != nil {
				e.metrics.LockContention.WithLabelValues(string(rule)).Inc()
			}
			e.logger.WithField("rule", rule).Info("sweep skipped: lock held elsewhere")
			return res, &SweepError{Rule: rule, Err: ErrLockHeld}
		}
		if lerr != nil {
			err = storeUnavailable(rule, "acquire lock", lerr)
			e.finish(&res, err, time.Now())
			return res, err
		}
		defer func() {
			if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
				e.logger.WithError(rerr).WithField("rule", rule).Warn("release rule lock failed")
			}
		}()
		stop := e.keepLease(ctx, rule, lease)
		defer stop()
	}

	defer func() {
		if p := recover(); p != nil {
			e.logger.WithField("rule", rule).WithField("panic", p).Error("sweep panicked")
			err = &SweepError{Rule: rule, Err: errors.New("sweep panicked")}
			e.finish(&res, err, time.Now())
		}
	}()

	started := time.Now()
	err = sweep(ctx, now, &res)
	e.finish(&res, err, started)
	return res, err
}

// keepLease extends the rule lock every third of its TTL until stop is called.
func (e *Engine) keepLease(ctx context.Context, rule RuleID, lease Lease) (stop func()) {
	period := e.lockTTL / 3
	if period <= 0 {
		period = e.lockTTL
	}
	ticker := e.clock.NewTicker(period)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				err := e.withTimeout(ctx, func(c context.Context) error { return lease.Extend(c, e.lockTTL) })
				if errors.Is(err, ErrLeaseLost) {
					e.logger.WithField("rule", rule).Error("rule lock lost while sweeping")
					return
				}
				if err != nil {
					e.logger.WithError(err).WithField("rule", rule).Warn("extend rule lock failed")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (e *Engine) finish(res *SweepResult, err error, started time.Time) {
	res.Duration = time.Since(started)
	status := "ok"
	if err != nil {
		status = "aborted"
	}
	if e.metrics != nil {
		e.metrics.SweepsTotal.WithLabelValues(string(res.Rule), status).Inc()
		e.metrics.SweepDuration.WithLabelValues(string(res.Rule)).Observe(res.Duration.Seconds())
		e.metrics.AccountsTransitioned.WithLabelValues(string(res.Rule)).Add(float64(res.Applied))
	}
	entry := e.logger.WithFields(logrus.Fields{
		"rule":        res.Rule,
		"threshold":   res.Threshold.Format(time.RFC3339),
		"candidates":  res.Candidates,
		"applied":     res.Applied,
		"skipped":     res.Skipped,
		"invalid":     res.Invalid,
		"failed":      res.Failed,
		"duration_ms": res.Duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("sweep aborted")
		return
	}
	entry.Info("sweep completed")
}

func (e *Engine) query(ctx context.Context, fn func(context.Context) ([]entity.Account, error)) ([]entity.Account, error) {
	c, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return fn(c)
}

func (e *Engine) write(ctx context.Context, fn func(context.Context) ([]string, error)) ([]string, error) {
	c, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return fn(c)
}

func (e *Engine) invalid(res *SweepResult, a entity.Account, err error) {
	res.Invalid++
	if e.metrics != nil {
		e.metrics.AccountFailures.WithLabelValues(string(res.Rule), "invalid_state").Inc()
	}
	e.logger.WithError(err).WithFields(logrus.Fields{
		"rule":       res.Rule,
		"account_id": a.ID,
		"status":     a.Status,
	}).Error("data integrity violation: record skipped")
}

func (e *Engine) accountFailure(res *SweepResult, a entity.Account, kind string, err error) {
	res.Failed++
	if e.metrics != nil {
		e.metrics.AccountFailures.WithLabelValues(string(res.Rule), kind).Inc()
	}
	e.logger.WithError(err).WithFields(logrus.Fields{
		"rule":       res.Rule,
		"account_id": a.ID,
		"kind":       kind,
	}).Warn("account side effect failed")
}

// removeMatching deletes the candidates for which match holds, guarded by
// expected status, and returns the ones the store actually removed.
func (e *Engine) removeMatching(ctx context.Context, res *SweepResult, candidates []entity.Account, expected entity.Status,
	match func(entity.Account) (bool, error)) ([]entity.Account, error) {
	var doomed []entity.Account
	ids := make([]string, 0, len(candidates))
	for _, a := range candidates {
		ok, err := match(a)
		if err != nil {
			e.invalid(res, a, err)
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}
		doomed = append(doomed, a)
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	applied, err := e.write(ctx, func(c context.Context) ([]string, error) { return e.store.BulkDelete(c, ids, expected) })
	if err != nil {
		return nil, storeUnavailable(res.Rule, "bulk delete", err)
	}
	res.Applied += len(applied)
	res.Skipped += len(ids) - len(applied)
	return keepApplied(doomed, applied, func(a entity.Account) string { return a.ID }), nil
}

// keepApplied filters items down to those whose id the store reported as written.
func keepApplied[T any](items []T, applied []string, id func(T) string) []T {
	if len(applied) == 0 {
		return nil
	}
	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a] = struct{}{}
	}
	out := make([]T, 0, len(applied))
	for _, it := range items {
		if _, ok := done[id(it)]; ok {
			out = append(out, it)
		}
	}
	return out
}

// saveTransitions applies transform to each candidate and writes the changed
// ones as a single conditional batch. Only updates the store applied are returned.
func (e *Engine) saveTransitions(ctx context.Context, res *SweepResult, candidates []entity.Account,
	transform func(entity.Account) (entity.Account, bool, error)) ([]entity.AccountUpdate, error) {
	updates := make([]entity.AccountUpdate, 0, len(candidates))
	for _, a := range candidates {
		next, changed, err := transform(a)
		if err != nil {
			e.invalid(res, a, err)
			continue
		}
		if !changed {
			res.Skipped++
			continue
		}
		updates = append(updates, entity.AccountUpdate{Account: next, ExpectedStatus: a.Status})
	}
	if len(updates) == 0 {
		return nil, nil
	}
	applied, err := e.write(ctx, func(c context.Context) ([]string, error) { return e.store.BulkSave(c, updates) })
	if err != nil {
		return nil, storeUnavailable(res.Rule, "bulk save", err)
	}
	res.Applied += len(applied)
	res.Skipped += len(updates) - len(applied)
	return keepApplied(updates, applied, func(u entity.AccountUpdate) string { return u.Account.ID }), nil
}

func (e *Engine) expirePending(ctx context.Context, now time.Time, res *SweepResult) error {
	res.Threshold = e.policy.PendingTTL.Before(now)
	candidates, err := e.query(ctx, func(c context.Context) ([]entity.Account, error) {
		return e.store.FindPending(c, res.Threshold)
	})
	if err != nil {
		return storeUnavailable(res.Rule, "find pending", err)
	}
	res.Candidates = len(candidates)
	_, err = e.removeMatching(ctx, res, candidates, entity.StatusPending, func(a entity.Account) (bool, error) {
		return lifecycle.ShouldExpirePending(a, now, e.policy)
	})
	return err
}

func (e *Engine) demoteDormant(ctx context.Context, now time.Time, res *SweepResult) error {
	res.Threshold = e.policy.DormantAfter.Before(now)
	candidates, err := e.query(ctx, func(c context.Context) ([]entity.Account, error) {
		return e.store.FindActive(c, res.Threshold)
	})
	if err != nil {
		return storeUnavailable(res.Rule, "find active", err)
	}
	res.Candidates = len(candidates)
	_, err = e.saveTransitions(ctx, res, candidates, func(a entity.Account) (entity.Account, bool, error) {
		return lifecycle.Demote(a, now, e.policy)
	})
	return err
}

func (e *Engine) deleteDormant(ctx context.Context, now time.Time, res *SweepResult) error {
	res.Threshold = e.policy.DeleteAfterDormant.Before(now)
	candidates, err := e.query(ctx, func(c context.Context) ([]entity.Account, error) {
		return e.store.FindDormant(c, res.Threshold)
	})
	if err != nil {
		return storeUnavailable(res.Rule, "find dormant", err)
	}
	res.Candidates = len(candidates)
	_, err = e.saveTransitions(ctx, res, candidates, func(a entity.Account) (entity.Account, bool, error) {
		return lifecycle.SoftDelete(a, now, e.policy)
	})
	return err
}

func (e *Engine) purgeDeleted(ctx context.Context, now time.Time, res *SweepResult) error {
	res.Threshold = e.policy.PurgeAfter.Before(now)
	candidates, err := e.query(ctx, func(c context.Context) ([]entity.Account, error) {
		return e.store.FindDeleted(c, res.Threshold)
	})
	if err != nil {
		return storeUnavailable(res.Rule, "find deleted", err)
	}
	res.Candidates = len(candidates)
	purged, err := e.removeMatching(ctx, res, candidates, entity.StatusDeleted, func(a entity.Account) (bool, error) {
		return lifecycle.ShouldPurge(a, now, e.policy)
	})
	if err != nil {
		return err
	}
	for _, a := range purged {
		if e.index != nil {
			if err := e.withTimeout(ctx, func(c context.Context) error { return e.index.RemoveAccount(c, a.ID) }); err != nil {
				e.accountFailure(res, a, "search_index", err)
			}
		}
		if e.avatars != nil && a.ProfileImage != "" {
			if err := e.withTimeout(ctx, func(c context.Context) error { return e.avatars.DeleteAvatar(c, a.ProfileImage) }); err != nil {
				e.accountFailure(res, a, "avatar", err)
			}
		}
	}
	return nil
}

func (e *Engine) anonymize(ctx context.Context, now time.Time, res *SweepResult) error {
	res.Threshold = e.policy.AnonymizeAfter.Before(now)
	candidates, err := e.query(ctx, func(c context.Context) ([]entity.Account, error) {
		return e.store.FindDeleted(c, res.Threshold)
	})
	if err != nil {
		return storeUnavailable(res.Rule, "find deleted", err)
	}
	res.Candidates = len(candidates)
	previous := make(map[string]entity.Account, len(candidates))
	for _, a := range candidates {
		previous[a.ID] = a
	}
	updates, err := e.saveTransitions(ctx, res, candidates, func(a entity.Account) (entity.Account, bool, error) {
		return lifecycle.Anonymize(a, now, e.policy, e.newToken())
	})
	if err != nil {
		return err
	}
	for _, u := range updates {
		a := u.Account
		if e.index != nil {
			if err := e.withTimeout(ctx, func(c context.Context) error { return e.index.IndexAccount(c, a) }); err != nil {
				e.accountFailure(res, a, "search_index", err)
			}
		}
		if img := previous[a.ID].ProfileImage; e.avatars != nil && img != "" {
			if err := e.withTimeout(ctx, func(c context.Context) error { return e.avatars.DeleteAvatar(c, img) }); err != nil {
				e.accountFailure(res, a, "avatar", err)
			}
		}
	}
	return nil
}

func (e *Engine) dormancyNotice(ctx context.Context, now time.Time, res *SweepResult) error {
	res.Threshold = e.policy.NoticeAfter.Before(now)
	windowStart := lifecycle.NoticeDate(e.policy.NoticeWindow.Before(now))
	candidates, err := e.query(ctx, func(c context.Context) ([]entity.Account, error) {
		return e.store.FindDormancyNoticeCandidates(c, res.Threshold, windowStart)
	})
	if err != nil {
		return storeUnavailable(res.Rule, "find notice candidates", err)
	}
	res.Candidates = len(candidates)

	for _, a := range candidates {
		due, err := lifecycle.NeedsDormancyNotice(a, now, e.policy)
		if err != nil {
			e.invalid(res, a, err)
			continue
		}
		if !due {
			res.Skipped++
			continue
		}

		since := lifecycle.NoticeWindowStart(a, now, e.policy)
		var noticed bool
		if err := e.withTimeout(ctx, func(c context.Context) (lerr error) {
			noticed, lerr = e.ledger.Exists(c, a.ID, since)
			return lerr
		}); err != nil {
			return storeUnavailable(res.Rule, "ledger lookup", err)
		}
		if noticed {
			res.Skipped++
			continue
		}

		notice := DormancyNotice{
			AccountID: a.ID,
			Address:   a.Email,
			Nickname:  a.Nickname,
			DormantOn: lifecycle.DormancyDate(a, e.policy),
		}
		sendCtx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
		sendErr := e.notifier.SendDormancyNotice(sendCtx, notice)
		cancel()
		if sendErr != nil {
			if e.metrics != nil {
				e.metrics.NoticesTotal.WithLabelValues("failed").Inc()
			}
			e.accountFailure(res, a, "notification", errors.Join(ErrNotificationFailure, sendErr))
		} else {
			if e.metrics != nil {
				e.metrics.NoticesTotal.WithLabelValues("sent").Inc()
			}
			res.Applied++
		}

		// The ledger entry is written whatever the send outcome so a failing
		// gateway cannot cause a resend on every sweep.
		if err := e.withTimeout(ctx, func(c context.Context) error {
			return e.ledger.Record(c, a.ID, now)
		}); err != nil {
			return storeUnavailable(res.Rule, "ledger record", err)
		}
	}
	return nil
}

func (e *Engine) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	return fn(c)
}
