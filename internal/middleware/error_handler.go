package middleware

import (
	"errors"

	apperrors "second-brain/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorHandler writes the last error pushed with c.Error as
// {message, errors} using the AppError status.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) || appErr.Code == 0 {
			appErr = apperrors.Internal(err)
		}

		if appErr.Code >= 500 {
			log.Error().Err(appErr.Err).Str("path", c.FullPath()).Msg(appErr.Message)
		} else {
			log.Debug().Err(appErr.Err).Int("status", appErr.Code).Str("path", c.FullPath()).Msg(appErr.Message)
		}

		c.AbortWithStatusJSON(appErr.Code, appErr)
	}
}
