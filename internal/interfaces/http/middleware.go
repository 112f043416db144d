package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
)

// UserIDHeader carries the caller identity set by the upstream gateway
const UserIDHeader = "X-User-ID"

const actorKey = "actor"

// loggingMiddleware logs one line per request
func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// identityMiddleware resolves the caller into a policy.Actor. Missing,
// unknown and inactive users are rejected with 401.
func identityMiddleware(directory port.Directory, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			abortUnauthorized(c, "missing "+UserIDHeader+" header")
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			abortUnauthorized(c, "invalid "+UserIDHeader+" header")
			return
		}

		user, err := directory.GetUser(c.Request.Context(), userID)
		if err != nil {
			logger.Error("Failed to resolve caller", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to resolve caller"})
			return
		}
		if user == nil || !user.Active {
			abortUnauthorized(c, "unknown user")
			return
		}

		c.Set(actorKey, policy.NewActor(user.ID, user.Name, user.DepartmentID, user.Roles))
		c.Next()
	}
}

// activityMiddleware records the caller as seen. Store failures never fail the request.
func activityMiddleware(store port.ActivityStore, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, ok := actorFrom(c); ok {
			if err := store.Touch(c.Request.Context(), actor.UserID, time.Now()); err != nil {
				logger.Error("Failed to record activity", "user_id", actor.UserID, "error", err)
			}
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg})
}

func actorFrom(c *gin.Context) (policy.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return policy.Actor{}, false
	}
	actor, ok := v.(policy.Actor)
	return actor, ok
}
