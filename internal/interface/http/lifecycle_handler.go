package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
	"github.com/oksasatya/account-lifecycle/pkg/response"
	"github.com/oksasatya/account-lifecycle/pkg/validation"
)

const (
	LastCycleKey = "lifecycle:cycle:last"
	lastCycleTTL = 7 * 24 * time.Hour
)

// RuleRunner is satisfied by *application.Engine.
type RuleRunner interface {
	Run(ctx context.Context, rule application.RuleID) (application.SweepResult, error)
	RunCycle(ctx context.Context) application.CycleResult
}

// RuleStatusSource is satisfied by *application.Scheduler.
type RuleStatusSource interface {
	Status() []application.RuleStatus
}

type LifecycleHandler struct {
	Runner    RuleRunner
	Scheduler RuleStatusSource // nil when the scheduler is disabled
	Redis     redis.Cmdable    // nil disables the last-cycle cache
	Logger    *logrus.Logger
}

func NewLifecycleHandler(runner RuleRunner, scheduler RuleStatusSource, rdb redis.Cmdable, logger *logrus.Logger) *LifecycleHandler {
	return &LifecycleHandler{Runner: runner, Scheduler: scheduler, Redis: rdb, Logger: logger}
}

type ruleView struct {
	Rule        application.RuleID       `json:"rule"`
	Order       int                      `json:"order"`
	Description string                   `json:"description"`
	Scheduled   bool                     `json:"scheduled"`
	Cadence     string                   `json:"cadence,omitempty"`
	NextRun     *time.Time               `json:"next_run,omitempty"`
	LastRun     *application.SweepResult `json:"last_run,omitempty"`
	LastError   string                   `json:"last_error,omitempty"`
	Runs        int                      `json:"runs"`
}

type cycleView struct {
	At      time.Time                     `json:"at"`
	Results []application.SweepResult     `json:"results"`
	Errors  map[application.RuleID]string `json:"errors,omitempty"`
}

func toCycleView(res application.CycleResult) cycleView {
	v := cycleView{At: res.At, Results: res.Results}
	for rule, err := range res.Errors {
		if v.Errors == nil {
			v.Errors = make(map[application.RuleID]string, len(res.Errors))
		}
		v.Errors[rule] = err.Error()
	}
	return v
}

type runRuleRequest struct {
	Rule string `uri:"rule" binding:"required,rule"`
}

// Rules lists every rule in cycle order with its schedule state.
func (h *LifecycleHandler) Rules(c *gin.Context) {
	status := map[application.RuleID]application.RuleStatus{}
	if h.Scheduler != nil {
		for _, st := range h.Scheduler.Status() {
			status[st.Rule] = st
		}
	}
	out := make([]ruleView, 0, len(application.RuleOrder))
	for _, id := range application.RuleOrder {
		v := ruleView{Rule: id, Order: id.Position(), Description: id.Description()}
		if st, ok := status[id]; ok {
			v.Scheduled = true
			v.Cadence = st.Cadence
			if !st.NextRun.IsZero() {
				next := st.NextRun
				v.NextRun = &next
			}
			v.LastRun = st.LastRun
			v.LastError = st.LastError
			v.Runs = st.Runs
		}
		out = append(out, v)
	}
	response.Success(c, http.StatusOK, out, "lifecycle rules", nil)
}

// RunRule executes one sweep now. The rule lock is honored.
func (h *LifecycleHandler) RunRule(c *gin.Context) {
	var req runRuleRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.Error[any](c, http.StatusNotFound, "unknown rule", validation.ToDetails(err))
		return
	}
	rule := application.RuleID(req.Rule)
	res, err := h.Runner.Run(c.Request.Context(), rule)
	if err != nil {
		_ = c.Error(err)
		response.Error[any](c, statusOf(err), "sweep failed", gin.H{"reason": err.Error(), "result": res})
		return
	}
	if h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{
			"rule":       rule,
			"applied":    res.Applied,
			"request_id": c.GetString("request_id"),
			"subject":    c.GetString("subject"),
		}).Info("manual sweep")
	}
	response.Success(c, http.StatusOK, res, "sweep completed", nil)
}

// RunCycle executes every rule once in order. Per-rule failures are reported
// in the body; the request itself succeeds.
func (h *LifecycleHandler) RunCycle(c *gin.Context) {
	v := toCycleView(h.Runner.RunCycle(c.Request.Context()))
	if h.Redis != nil {
		if err := helpers.RedisSetJSON(c.Request.Context(), h.Redis, LastCycleKey, v, lastCycleTTL); err != nil {
			helpers.LogError(h.Logger, "cache cycle result failed", err, logrus.Fields{"request_id": c.GetString("request_id")})
		}
	}
	msg := "cycle completed"
	if len(v.Errors) > 0 {
		msg = "cycle completed with errors"
	}
	response.Success(c, http.StatusOK, v, msg, nil)
}

// LastCycle returns the most recent manual cycle result.
func (h *LifecycleHandler) LastCycle(c *gin.Context) {
	if h.Redis == nil {
		response.Error[any](c, http.StatusNotFound, "no cycle recorded", nil)
		return
	}
	var v cycleView
	found, err := helpers.RedisGetJSON(c.Request.Context(), h.Redis, LastCycleKey, &v)
	if err != nil {
		_ = c.Error(err)
		response.Error[any](c, http.StatusServiceUnavailable, "cycle cache unavailable", err.Error())
		return
	}
	if !found {
		response.Error[any](c, http.StatusNotFound, "no cycle recorded", nil)
		return
	}
	response.Success(c, http.StatusOK, v, "last cycle", nil)
}
