package middleware

import (
	"fmt"
	"strings"

	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
)

const (
	staffIDKey   = "staff_id"
	staffNameKey = "staff_name"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// EventSource cannot set headers, so the event stream passes the token in the query.
	return c.Query("access_token")
}

// ValidateStaffToken rejects requests without a valid staff token and stores
// the staff id for handlers (see GetStaffID).
func ValidateStaffToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.LogUnauthorizedAccess(c.ClientIP(), c.Request.URL.Path, "missing token")
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Unauthorized",
				Err: fmt.Errorf("missing bearer token"),
			})
			c.Abort()
			return
		}

		claims, err := util.ParseStaffToken(token)
		if err != nil {
			util.LogUnauthorizedAccess(c.ClientIP(), c.Request.URL.Path, err.Error())
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Unauthorized",
				Err: err,
			})
			c.Abort()
			return
		}

		c.Set(staffIDKey, claims.Subject)
		c.Set(staffNameKey, claims.Name)
		c.Next()
	}
}

// GetStaffID returns the authenticated staff id.
func GetStaffID(c *gin.Context) (string, bool) {
	id := c.GetString(staffIDKey)
	return id, id != ""
}
