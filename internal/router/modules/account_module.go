package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/account-lifecycle/internal/interface/http"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
)

// AccountModule exposes the lifecycle view of accounts and the externally
// triggered transitions. All routes are admin only.
type AccountModule struct {
	Handler *handlers.AccountHandler
	JWT     *helpers.JWTManager
	Redis   redis.Cmdable
	Limits  AdminLimits
}

func NewAccountModule(h *handlers.AccountHandler, jwt *helpers.JWTManager, rdb redis.Cmdable, limits AdminLimits) *AccountModule {
	return &AccountModule{Handler: h, JWT: jwt, Redis: rdb, Limits: limits}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/accounts", adminChain(m.Redis, m.JWT, m.Limits)...)
	{
		g.GET("/search", m.Handler.SearchAccounts)
		g.GET("/:id", m.Handler.Get)
		g.POST("/:id/login", m.Handler.RecordLogin)
		g.POST("/:id/withdraw", m.Handler.Withdraw)
	}
}
