// Package server assembles the HTTP router from the domain handlers.
package server

import (
	"net/http"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/admin"
	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/export"
	"github.com/envisys/defensedesk/pkg/defensedesk/groups"
	"github.com/envisys/defensedesk/pkg/defensedesk/logging"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/envisys/defensedesk/pkg/defensedesk/schedules"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

const serviceName = "defensedesk"

// Options configures the router
type Options struct {
	// CORSOrigins lists allowed origins. "*" or an empty list allows any origin.
	CORSOrigins []string
	// Location interprets date-only query parameters
	Location *time.Location
	// Swagger mounts the API docs at /swagger
	Swagger bool
}

// New creates a Gin engine with all routes registered
func New(db *gorm.DB, service *scheduling.Service, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(), corsMiddleware(opts.CORSOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": serviceName,
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Protected routes reject tokens of deactivated users
		authenticated := []gin.HandlerFunc{auth.AuthMiddleware(), auth.RequireActiveUser(db)}

		// Groups routes (protected)
		groupsHandler := groups.NewHandler(db, service)
		groupsGroup := api.Group("/groups", authenticated...)
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterMemberRoutes(groupsGroup)

		// Schedule routes (protected)
		schedulesGroup := api.Group("/schedules", authenticated...)
		schedules.NewHandler(service, opts.Location).RegisterRoutes(schedulesGroup)
		export.NewHandler(service, opts.Location).RegisterRoutes(schedulesGroup)

		// Admin routes (admin role required)
		adminGroup := api.Group("/admin", append(authenticated, auth.RequireAdmin())...)
		admin.NewHandler(db).RegisterRoutes(adminGroup)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", logging.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", logging.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if allowAll(origins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
