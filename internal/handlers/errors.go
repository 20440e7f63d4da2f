package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP statuses. Anything
// unrecognised is logged and reported as a bare 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		verr     *services.ValidationError
		conflict *services.ConflictError
		authn    *services.AuthenticationError
		authz    *services.AuthorizationError
		notFound *services.NotFoundError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Invalid input",
			"details": verr.Fields,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": conflict.Error(),
			"details": map[string][]string{conflict.Field: {conflict.Error()}},
		})
	case errors.As(err, &authn):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "not_authenticated",
			"message": "Authentication credentials were not provided or are invalid.",
		})
	case errors.As(err, &authz):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   authorizationCode(authz.Err),
			"message": authz.Error(),
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": notFound.Error(),
		})
	default:
		logger.Error("request failed", "error", err, "method", c.Request.Method, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}

func authorizationCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, services.ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, services.ErrTokenRevoked):
		return "token_blacklisted"
	default:
		return "token_not_valid"
	}
}
