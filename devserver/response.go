package devserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/wasmfetch/errors"
)

// RespondWithError writes err as an error body. An *errors.AppError keeps
// its status; anything else is a 500.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, apperrors.Internal(err).ToResponse())
}

// bindQuery binds and validates query parameters into v.
func bindQuery(c *gin.Context, v any) bool {
	if err := c.ShouldBindQuery(v); err != nil {
		RespondWithError(c, apperrors.Validation(err.Error()).WithCause(err))
		return false
	}
	return true
}
