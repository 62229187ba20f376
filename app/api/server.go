package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"teamcal-comb/app/cfg"
	"teamcal-comb/app/logging"
)

// NewServer creates the HTTP engine with all routes configured.
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				logging.RedactURL(param.Path),
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware so browser-based calendar clients can subscribe
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/calendar/:token", handler.GetCalendar)

	r.GET("/health", handler.GetHealth)

	// Root endpoint with setup information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "teamcal-comb",
			"version":     cfg.Get().Version,
			"description": "SpielerPlus calendar proxy with attendance status emojis",
			"usage":       "/calendar/<ICAL_TOKEN>?u=<USER_ID>&name=<TEAM_NAME>&showNotNominated=true",
			"authentication": gin.H{
				"scheme":  "Basic",
				"message": "Use your SpielerPlus username and password",
			},
			"emoji": gin.H{
				"👍": "attending",
				"👎": "not attending",
				"❓": "marked maybe",
				"🤷": "no response yet",
				"❌": "not nominated",
				"🔒": "attendance page not accessible",
			},
			"parameters": gin.H{
				"u":                "SpielerPlus user id from the original subscription URL (required)",
				"name":             "calendar display name (optional)",
				"showNotNominated": "include events you are not nominated for (default: false)",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
