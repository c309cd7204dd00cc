package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/search"
	"github.com/oksasatya/account-lifecycle/pkg/response"
	"github.com/oksasatya/account-lifecycle/pkg/validation"
)

// AccountSearcher is satisfied by *search.AccountIndex.
type AccountSearcher interface {
	Search(ctx context.Context, q, status string, size int) ([]search.Hit, error)
}

type AccountHandler struct {
	Svc    *application.AccountService
	Search AccountSearcher // optional
	Logger *logrus.Logger
}

func NewAccountHandler(svc *application.AccountService, searcher AccountSearcher, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Search: searcher, Logger: logger}
}

type accountView struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Nickname        string     `json:"nickname"`
	ProfileImage    string     `json:"profile_image,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	Anonymized      bool       `json:"anonymized"`
	AnonymizedAt    *time.Time `json:"anonymized_at,omitempty"`
}

func toAccountView(a *entity.Account) accountView {
	return accountView{
		ID:              a.ID,
		Email:           a.Email,
		Nickname:        a.Nickname,
		ProfileImage:    a.ProfileImage,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		StatusChangedAt: a.StatusChangedAt,
		LastLoginAt:     a.LastLoginAt,
		DeletedAt:       a.DeletedAt,
		Anonymized:      a.Anonymized,
		AnonymizedAt:    a.AnonymizedAt,
	}
}

type accountURI struct {
	ID string `uri:"id" binding:"required"`
}

type searchQuery struct {
	Q      string `form:"q"`
	Status string `form:"status" binding:"omitempty,status"`
	Size   int    `form:"size" binding:"omitempty,min=1,max=50"`
}

type withdrawRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *AccountHandler) Get(c *gin.Context) {
	var uri accountURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid account id", validation.ToDetails(err))
		return
	}
	a, err := h.Svc.Get(c.Request.Context(), uri.ID)
	if err != nil {
		writeError(c, "account lookup failed", err)
		return
	}
	response.Success(c, http.StatusOK, toAccountView(a), "account", nil)
}

// SearchAccounts queries the account index by email or nickname.
func (h *AccountHandler) SearchAccounts(c *gin.Context) {
	if h.Search == nil {
		response.Error[any](c, http.StatusServiceUnavailable, "search disabled", nil)
		return
	}
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid query", validation.ToDetails(err))
		return
	}
	hits, err := h.Search.Search(c.Request.Context(), q.Q, q.Status, q.Size)
	if err != nil {
		_ = c.Error(err)
		response.Error[any](c, http.StatusBadGateway, "search failed", err.Error())
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

// RecordLogin is called by the auth service after a successful sign-in.
func (h *AccountHandler) RecordLogin(c *gin.Context) {
	var uri accountURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid account id", validation.ToDetails(err))
		return
	}
	a, err := h.Svc.RecordLogin(c.Request.Context(), uri.ID)
	if err != nil {
		writeError(c, "record login failed", err)
		return
	}
	response.Success(c, http.StatusOK, toAccountView(a), "login recorded", nil)
}

func (h *AccountHandler) Withdraw(c *gin.Context) {
	var uri accountURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid account id", validation.ToDetails(err))
		return
	}
	var req withdrawRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
			return
		}
	}
	a, err := h.Svc.Withdraw(c.Request.Context(), uri.ID, req.Reason)
	if err != nil {
		writeError(c, "withdraw failed", err)
		return
	}
	response.Success(c, http.StatusOK, toAccountView(a), "account withdrawn", nil)
}
