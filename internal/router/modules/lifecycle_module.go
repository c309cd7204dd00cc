package modules

import (
	"net"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/account-lifecycle/internal/interface/http"
	"github.com/oksasatya/account-lifecycle/internal/interface/middleware"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
)

// AdminLimits are the per-IP and per-subject request budgets of admin routes.
type AdminLimits struct {
	PerIP      int
	PerSubject int
	Window     time.Duration
	// Allow skips the per-IP limiter for these client networks.
	Allow    []*net.IPNet
	Rejected *prometheus.CounterVec
}

// adminChain authenticates an admin token and applies both limiters.
func adminChain(rdb redis.Cmdable, jwt *helpers.JWTManager, l AdminLimits) []gin.HandlerFunc {
	var allow middleware.AllowFunc
	if len(l.Allow) > 0 {
		allow = middleware.AllowCIDRs(l.Allow)
	}
	return []gin.HandlerFunc{
		middleware.NewRateLimit(rdb, middleware.RateLimitOptions{
			Limit: l.PerIP, Window: l.Window, Key: middleware.KeyByIP(), Allow: allow, Rejected: l.Rejected,
		}),
		middleware.RequireRole(jwt, helpers.RoleAdmin),
		middleware.NewRateLimit(rdb, middleware.RateLimitOptions{
			Limit: l.PerSubject, Window: l.Window, Key: middleware.KeyBySubject(), Rejected: l.Rejected,
		}),
	}
}

// LifecycleModule wires the rule table and manual sweep endpoints.
// Admin: GET /api/lifecycle/rules, POST /api/lifecycle/rules/:rule/run,
// POST /api/lifecycle/cycle, GET /api/lifecycle/cycle/last
type LifecycleModule struct {
	Handler *handlers.LifecycleHandler
	JWT     *helpers.JWTManager
	Redis   redis.Cmdable
	Limits  AdminLimits
}

func NewLifecycleModule(h *handlers.LifecycleHandler, jwt *helpers.JWTManager, rdb redis.Cmdable, limits AdminLimits) *LifecycleModule {
	return &LifecycleModule{Handler: h, JWT: jwt, Redis: rdb, Limits: limits}
}

func (m *LifecycleModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/lifecycle", adminChain(m.Redis, m.JWT, m.Limits)...)
	{
		g.GET("/rules", m.Handler.Rules)
		g.POST("/rules/:rule/run", m.Handler.RunRule)
		g.POST("/cycle", m.Handler.RunCycle)
		g.GET("/cycle/last", m.Handler.LastCycle)
	}
}
