package middleware

import (
	"net/http"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	dbContextKey  = "db"
	busContextKey = "bus"
)

// CORSMiddleware configures CORS headers for incoming requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PATCH")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Content-Type", "application/json")

		// For preflight requests, respond with 204 and abort further processing.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// DatabaseMiddleware makes db available to handlers through GetDB.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(dbContextKey, db)
		c.Next()
	}
}

// GetDB returns the request-scoped DB, bound to the request context, or nil
// when DatabaseMiddleware is not installed.
func GetDB(c *gin.Context) *gorm.DB {
	v, ok := c.Get(dbContextKey)
	if !ok {
		return nil
	}
	db, ok := v.(*gorm.DB)
	if !ok || db == nil {
		return nil
	}
	return db.WithContext(c.Request.Context())
}

// BusMiddleware makes the refresh bus available to handlers through GetBus.
func BusMiddleware(b *bus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(busContextKey, b)
		c.Next()
	}
}

// GetBus returns the refresh bus, or nil when BusMiddleware is not installed.
func GetBus(c *gin.Context) *bus.Bus {
	v, ok := c.Get(busContextKey)
	if !ok {
		return nil
	}
	b, _ := v.(*bus.Bus)
	return b
}
