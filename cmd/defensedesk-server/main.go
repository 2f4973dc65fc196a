package main

import (
	"context"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/config"
	"github.com/envisys/defensedesk/pkg/defensedesk/database"
	"github.com/envisys/defensedesk/pkg/defensedesk/logging"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/envisys/defensedesk/pkg/defensedesk/notify"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/envisys/defensedesk/pkg/defensedesk/server"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	_ "github.com/envisys/defensedesk/docs"
)

// @title DefenseDesk API
// @version 1.0
// @description Thesis defense scheduling with adviser and panel conflict detection.

// @contact.name DefenseDesk

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat, nil)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	if err := database.Connect(cfg.DBDriver, cfg.DBDSN, database.Options{LogSQL: cfg.LogSQL}); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	db := database.GetDB()

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	logrus.Info("Database migrations completed")

	// Create default admin user if no admin exists
	if _, err := auth.EnsureAdmin(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logrus.Fatalf("Failed to ensure admin user exists: %v", err)
	}

	service := scheduling.NewService(db,
		scheduling.WithResourceLock(scheduling.NewResourceLock(cfg.DBDriver)),
		scheduling.WithDispatcher(newDispatcher(cfg)),
	)

	r := server.New(db, service, server.Options{
		CORSOrigins: cfg.CORSOrigins,
		Location:    cfg.TimeZone,
		Swagger:     !cfg.IsProduction(),
	})

	logrus.Infof("Starting DefenseDesk server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}

// newDispatcher logs every notification and also queues it on Redis when
// REDIS_ADDR is set and reachable.
func newDispatcher(cfg *config.Config) notify.Dispatcher {
	logDispatcher := notify.LogDispatcher{Logger: logrus.WithField("component", "notify")}
	if cfg.RedisAddr == "" {
		return logDispatcher
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	queue := notify.NewRedisQueue(client, notify.DefaultQueueKey)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := queue.Ping(ctx); err != nil {
		logrus.Warnf("Redis connection failed: %v. Continuing without the notification queue", err)
		_ = client.Close()
		return logDispatcher
	}

	logrus.Info("Redis connected, notifications are queued")
	return notify.Multi{logDispatcher, queue}
}
