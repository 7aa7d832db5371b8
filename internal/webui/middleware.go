package webui

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// exposedHeaders are readable by cross-origin browser clients.
var exposedHeaders = []string{"X-Request-ID", "X-Total-Queries", "X-Unresolved-Queries", "Content-Disposition"}

// requestID tags every request with an ID, which also becomes the run ID of
// an upload. A client-supplied X-Request-ID is kept; otherwise a time-ordered
// UUID is generated.
func requestID() gin.HandlerFunc {
	return requestid.New(
		requestid.WithGenerator(func() string { return uuid.Must(uuid.NewV7()).String() }),
		requestid.WithHandler(func(c *gin.Context, id string) { c.Set(requestIDKey, id) }),
	)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("webui: %s %s status=%d request=%s in %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.GetString(requestIDKey),
			time.Since(start).Truncate(time.Millisecond))
	}
}

// apiKey rejects requests without a matching X-API-Key header. An empty key
// disables the check.
func apiKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Invalid API key"})
			return
		}
		c.Next()
	}
}

// trustedHosts rejects requests whose Host is not listed. "*" allows all and
// "*.example.com" matches any subdomain.
func trustedHosts(allowed []string) gin.HandlerFunc {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !hostAllowed(c.Request.Host, allowed) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Invalid host header"})
			return
		}
		c.Next()
	}
}

func hostAllowed(host string, allowed []string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(a)
		if host == a {
			return true
		}
		if strings.HasPrefix(a, "*.") && strings.HasSuffix(host, a[1:]) {
			return true
		}
	}
	return false
}

// allowCORS answers preflight requests for the listed origins. Credentials
// are allowed, so "*" is matched by function and the origin is echoed back
// instead of a literal "*". No origins disables the middleware.
func allowCORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	all := slices.Contains(origins, "*")
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return all || slices.Contains(origins, origin)
		},
		AllowMethods:              []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:              []string{"Origin", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:             exposedHeaders,
		AllowCredentials:          true,
		MaxAge:                    10 * time.Minute,
		OptionsResponseStatusCode: http.StatusOK,
	})
}

// withTimeout bounds h by d. The request context carries the same deadline
// so database work stops too; the client gets a 504 as soon as d elapses.
// Zero disables it.
func withTimeout(d time.Duration, h gin.HandlerFunc) gin.HandlerFunc {
	if d <= 0 {
		return h
	}
	return timeout.New(
		timeout.WithTimeout(d),
		timeout.WithHandler(func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), d)
			defer cancel()
			c.Request = c.Request.WithContext(ctx)
			h(c)
		}),
		timeout.WithResponse(func(c *gin.Context) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"detail": "Request timed out"})
		}),
	)
}
