package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/salonbook/internal/observability/context"
)

const (
	HeaderUserID     = "X-User-Id"
	HeaderBranchID   = "X-Branch-Id"
	contextUserIDKey = "user_id"
)

// ActorContext tags the request with the acting user and branch taken from
// headers. Handlers still prefer a user_id sent in the body.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if raw := strings.TrimSpace(c.GetHeader(HeaderUserID)); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil || id == 0 {
				AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid X-User-Id header"))
				return
			}
			c.Set(contextUserIDKey, id)
			ctx = obscontext.WithActor(ctx, "user", id.String())
		}
		if raw := strings.TrimSpace(c.GetHeader(HeaderBranchID)); raw != "" {
			ctx = obscontext.WithBranchID(ctx, raw)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// actingUser returns the body user when set, else the header user.
func actingUser(c *gin.Context, fromBody snowflake.ID) snowflake.ID {
	if fromBody != 0 {
		return fromBody
	}
	if v, ok := c.Get(contextUserIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}
