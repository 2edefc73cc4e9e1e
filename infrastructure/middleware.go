package infrastructure

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
	"github.com/vitovidale/video-insight-service/usecase"
)

const (
	// GuestHeader carries the guest marker issued by POST /guest/session.
	GuestHeader = "X-Guest-ID"

	identityKey = "identity"
)

// IdentityMiddleware resolves the caller once per request and aborts with
// 401 when no usable credential is present.
func IdentityMiddleware(resolver *usecase.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.GetHeader("Authorization"), c.GetHeader(GuestHeader))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}

// RequestLogger logs one line per request through the service logger.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if id := identityFrom(c); !id.IsZero() {
			fields = append(fields, "caller", id.String())
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request handled", fields...)
		}
	}
}
