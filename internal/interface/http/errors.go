package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/pkg/response"
)

// statusOf maps application errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, application.ErrUnknownRule), errors.Is(err, application.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrLockHeld),
		errors.Is(err, application.ErrInvalidTransition),
		errors.Is(err, application.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, application.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, application.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, message string, err error) {
	_ = c.Error(err)
	response.Error[any](c, statusOf(err), message, err.Error())
}
