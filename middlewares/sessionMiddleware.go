package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/salon_backend/config"
	"github.com/mmdatafocus/salon_backend/utils"
)

// UserSession is what the login service caches under "Token:<token>".
type UserSession struct {
	BusinessId string `json:"business_id"`
	UserId     int    `json:"user_id"`
	UserName   string `json:"user_name"`
	BranchId   int    `json:"branch_id"`
}

// SessionMiddleware resolves the "token" header through redis.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		var session UserSession
		exists, err := config.GetRedisObject(c.Request.Context(), "Token:"+token, &session)
		if err != nil || !exists || session.BusinessId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetBusinessIdInContext(ctx, session.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, session.UserId)
		ctx = utils.SetUserNameInContext(ctx, session.UserName)
		if session.BranchId > 0 {
			ctx = utils.SetBranchIdInContext(ctx, session.BranchId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
