// Package main runs the course marketplace HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coursebay/backend/config"
	"github.com/coursebay/backend/internal/auth"
	"github.com/coursebay/backend/internal/coupons"
	"github.com/coursebay/backend/internal/courses"
	"github.com/coursebay/backend/internal/enrollments"
	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/internal/payments"
	"github.com/coursebay/backend/internal/progress"
	"github.com/coursebay/backend/internal/realtime"
	"github.com/coursebay/backend/internal/reviews"
	"github.com/coursebay/backend/internal/worker"
	"github.com/coursebay/backend/pkg/database"
	"github.com/coursebay/backend/pkg/email"
	gateway "github.com/coursebay/backend/pkg/payments"
	"github.com/coursebay/backend/pkg/queue"
	"github.com/coursebay/backend/pkg/redis"
	"github.com/coursebay/backend/pkg/response"
	"github.com/coursebay/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			VideosBucket:         cfg.AWS.VideosBucket,
			ThumbnailsBucket:     cfg.AWS.ThumbnailsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	stripeClient := gateway.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	var emailSender *email.Sender
	if cfg.Email.APIKey != "" {
		emailSender = email.NewSender(cfg.Email.APIKey, cfg.Email.FromAddress, cfg.Email.FromName)
	}

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	resetRepo := auth.NewResetRepository(pool)
	resetHandler := auth.NewResetHandler(authRepo, resetRepo, jobQueue, logger)

	// Courses
	courseRepo := courses.NewRepository(pool)
	courseHandler := courses.NewHandler(courseRepo, logger)

	// Enrollments
	enrollmentRepo := enrollments.NewRepository(pool)
	enrollmentService := enrollments.NewService(enrollmentRepo, courseRepo)
	enrollmentHandler := enrollments.NewHandler(enrollmentService, enrollmentRepo, logger)

	mediaHandler := courses.NewMediaHandler(courseRepo, enrollmentRepo, s3Client, jobQueue, logger)

	// Progress and quizzes
	progressRepo := progress.NewRepository(pool)
	progressHandler := progress.NewHandler(progressRepo, courseRepo, enrollmentRepo, hub, logger)

	// Reviews
	reviewRepo := reviews.NewRepository(pool)
	reviewHandler := reviews.NewHandler(reviewRepo, enrollmentRepo, logger)

	// Coupons
	couponRepo := coupons.NewRepository(pool)
	couponHandler := coupons.NewHandler(couponRepo, courseRepo, logger)

	// Payments
	paymentRepo := payments.NewRepository(pool)
	paymentService := payments.NewService(paymentRepo, couponRepo, authRepo, courseRepo, enrollmentService, stripeClient)
	paymentHandler := payments.NewHandler(paymentService, paymentRepo, enrollmentRepo, stripeClient, logger)
	webhookHandler := payments.NewWebhookHandler(stripeClient, paymentRepo, couponRepo, enrollmentService,
		&receiptSource{users: authRepo, courses: courseRepo}, jobQueue, cfg.Frontend.BaseURL, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	limiter := middleware.NewRateLimiter(rdb.Client)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Logger(logger))
	router.Use(limiter.Limit("api", cfg.RateLimit.RequestsPerMinute, time.Minute))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public catalog
	router.GET("/courses", courseHandler.List)
	router.GET("/courses/:id", courseHandler.GetByID)
	router.GET("/courses/:id/reviews", reviewHandler.List)
	router.POST("/coupons/validate", couponHandler.Validate)

	// Auth (public, tighter rate limit)
	authGroup := router.Group("/auth")
	authGroup.Use(limiter.Limit("auth", cfg.RateLimit.AuthPerMinute, time.Minute))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/forgot-password", resetHandler.Forgot)
		authGroup.POST("/validate-reset-code", resetHandler.ValidateCode)
		authGroup.POST("/reset-password", resetHandler.Reset)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me", authHandler.Me)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Enrollments and learning
		api.POST("/courses/:id/enroll", enrollmentHandler.Enroll)
		api.GET("/me/enrollments", enrollmentHandler.ListMine)
		api.GET("/courses/:id/progress", progressHandler.CourseProgress)
		api.POST("/lessons/:id/progress", progressHandler.RecordWatchTime)
		api.POST("/lessons/:id/complete", progressHandler.Complete)
		api.GET("/lessons/:id/quiz", progressHandler.GetQuiz)
		api.POST("/lessons/:id/quiz/submit", progressHandler.SubmitQuiz)
		api.GET("/lessons/:id/quiz/attempts", progressHandler.ListAttempts)
		api.GET("/lessons/:id/playback-url", mediaHandler.PlaybackURL)

		// Reviews
		api.POST("/courses/:id/reviews", reviewHandler.Create)
		api.PUT("/reviews/:id", reviewHandler.Update)
		api.DELETE("/reviews/:id", reviewHandler.Delete)

		// Payments
		api.POST("/courses/:id/checkout", paymentHandler.Checkout)
		api.POST("/courses/:id/subscribe", paymentHandler.Subscribe)
		api.GET("/me/payments", paymentHandler.ListMine)
		api.GET("/me/cards", paymentHandler.ListCards)
		api.DELETE("/me/cards/:id", paymentHandler.DeleteCard)
		api.POST("/payments/:id/refund", middleware.RequireRole("admin"), paymentHandler.Refund)

		// Instructor authoring
		instructor := api.Group("/instructor")
		instructor.Use(middleware.RequireRole("instructor", "admin"))
		{
			instructor.GET("/courses", courseHandler.ListMine)
			instructor.POST("/courses", courseHandler.Create)
			instructor.PATCH("/courses/:id", courseHandler.Update)
			instructor.POST("/courses/:id/publish", courseHandler.Publish(true))
			instructor.POST("/courses/:id/unpublish", courseHandler.Publish(false))
			instructor.DELETE("/courses/:id", courseHandler.Delete)
			instructor.POST("/courses/:id/thumbnail", mediaHandler.UploadThumbnail)
			instructor.POST("/courses/:id/modules", courseHandler.CreateModule)
			instructor.POST("/modules/:id/lessons", courseHandler.CreateLesson)
			instructor.POST("/lessons/:id/questions", courseHandler.CreateQuestion)
			instructor.POST("/lessons/:id/video/generate-upload-url", mediaHandler.GenerateUploadURL)
			instructor.POST("/lessons/:id/video/confirm", mediaHandler.ConfirmUpload)

			instructor.GET("/coupons", couponHandler.ListMine)
			instructor.POST("/coupons", couponHandler.Create)
			instructor.PATCH("/coupons/:id", couponHandler.SetActive)
			instructor.DELETE("/coupons/:id", couponHandler.Delete)
			instructor.GET("/coupons/:id/usages", couponHandler.Usages)
		}
	}

	// Webhooks (no JWT; signature verified in handler)
	router.POST("/webhooks/stripe", webhookHandler.Handle)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background jobs run in-process too, so a single binary works in dev.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	processor := worker.NewProcessor(emailSender, s3Client, jobQueue, resetRepo, logger)
	go processor.Run(workerCtx)
	go processor.RunPurge(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// receiptSource adapts the auth and course repositories to what the payment
// webhook needs for receipt emails.
type receiptSource struct {
	users   *auth.Repository
	courses *courses.Repository
}

func (r *receiptSource) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.users.GetByID(ctx, id)
}

func (r *receiptSource) GetCourseTitle(ctx context.Context, id uuid.UUID) (string, error) {
	course, err := r.courses.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return course.Title, nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
