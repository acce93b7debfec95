package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"campusqr/internal/attendance"
	"campusqr/internal/auth"
	"campusqr/internal/config"
	"campusqr/internal/httpmiddleware"
	"campusqr/internal/identity"
	"campusqr/internal/qrtoken"
	"campusqr/internal/queue"
	"campusqr/internal/store"
)

var (
	qrGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusqr_qr_generated_total",
		Help: "QR payloads minted.",
	})
	scansRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusqr_scans_recorded_total",
		Help: "Attendance scans recorded.",
	})
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Warnf("db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusqr:scans")
	}

	tokens := qrtoken.New(redisClient.Client, cfg.QRTokenTTL)
	students := identity.NewRepository(db.Client)
	attRepo := attendance.NewRepository(db.Client)
	att := attendance.NewService(attRepo, cfg.DefaultPageSize)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Dev-grade token exchange so the client binaries can obtain a bearer
	// credential. Not a security model; see the auth package.
	r.POST("/api/auth/token", func(c *gin.Context) {
		var req struct {
			UserID string `json:"userId" binding:"required"`
			Name   string `json:"name"`
			Role   string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		name := req.Name
		if req.Role == auth.RoleStudent {
			student, err := students.Get(c.Request.Context(), req.UserID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"message": "directory lookup failed"})
				return
			}
			if student == nil {
				c.JSON(http.StatusNotFound, gin.H{"message": "student not found"})
				return
			}
			name = student.Name
		}

		token, exp, err := auth.Issue(req.UserID, name, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token, "expiresAt": exp.Unix()})
	})

	qr := r.Group("/api/qr", auth.BearerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	qr.GET("/generate", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		payload, err := tokens.Mint(c.Request.Context(), claims.Subject)
		if err != nil {
			log.WithError(err).Error("qr mint failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not generate QR code"})
			return
		}
		qrGenerated.Inc()

		userInfo := gin.H{
			"name":     claims.Name,
			"userType": claims.Role,
			"id":       claims.Subject,
		}
		if claims.Role == auth.RoleStudent {
			if student, err := students.Get(c.Request.Context(), claims.Subject); err == nil && student != nil && student.AvatarURL != nil {
				userInfo["avatar"] = *student.AvatarURL
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"qrData":    payload,
			"expiresIn": int(tokens.TTL().Seconds()),
			"userInfo":  userInfo,
		})
	})

	qr.POST("/verify", func(c *gin.Context) {
		var req struct {
			QRData string `json:"qrData" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "qrData required"})
			return
		}

		student, err := resolveStudent(c.Request.Context(), tokens, students, req.QRData)
		if err != nil {
			respondResolveError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true, "student": student})
	})

	qr.POST("/scan-attendance", auth.RequireStaff(), func(c *gin.Context) {
		var req struct {
			QRData   string `json:"qrData" binding:"required"`
			Purpose  string `json:"purpose"`
			Location string `json:"location"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "qrData required"})
			return
		}

		// Scan re-validates the payload on its own; a prior verify is a UI
		// convention, not something the server trusts.
		student, err := resolveStudent(c.Request.Context(), tokens, students, req.QRData)
		if err != nil {
			respondResolveError(c, err)
			return
		}

		claims := auth.ClaimsFrom(c)
		rec, err := att.RecordScan(c.Request.Context(), student.StudentID, claims.Name, claims.Role, req.Purpose, req.Location)
		if err != nil {
			log.WithError(err).Error("record scan failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not record attendance"})
			return
		}
		scansRecorded.Inc()

		if err := q.Publish(c.Request.Context(), queue.ScanEvent{
			RecordID:  rec.ID,
			StudentID: rec.StudentID,
			ScannedAt: rec.ScannedAt,
		}); err != nil {
			log.WithError(err).Warn("queue publish failed")
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "Attendance recorded",
			"student":   student,
			"scannedBy": gin.H{"name": claims.Name, "userType": claims.Role},
			"scannedAt": rec.ScannedAt,
		})
	})

	qr.GET("/attendance/my-history", func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		page, limit := pageParams(c, cfg.DefaultPageSize)
		records, cursor, err := att.History(c.Request.Context(), claims.Subject, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not load history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": recordsOrEmpty(records), "pagination": cursor})
	})

	qr.GET("/attendance/student/:id", auth.RequireStaff(), func(c *gin.Context) {
		studentID := c.Param("id")
		student, err := students.Get(c.Request.Context(), studentID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "directory lookup failed"})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "student not found"})
			return
		}

		page, limit := pageParams(c, cfg.DefaultPageSize)
		records, cursor, err := att.History(c.Request.Context(), studentID, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not load history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"student": student, "attendance": recordsOrEmpty(records), "pagination": cursor})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server forced shutdown: %v", err)
	}

	log.Info("server exited")
	return nil
}

// resolveStudent maps a raw payload to a directory entry.
func resolveStudent(ctx context.Context, tokens *qrtoken.Service, students *identity.Repository, qrData string) (*identity.Student, error) {
	subject, err := tokens.Resolve(ctx, qrData)
	if err != nil {
		return nil, err
	}
	student, err := students.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, qrtoken.ErrInvalid
	}
	return student, nil
}

func respondResolveError(c *gin.Context, err error) {
	if errors.Is(err, qrtoken.ErrInvalid) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "QR code is invalid or expired"})
		return
	}
	log.WithError(err).Error("qr resolve failed")
	c.JSON(http.StatusInternalServerError, gin.H{"message": "verification failed"})
}

func pageParams(c *gin.Context, defaultLimit int) (int, int) {
	page, limit := 1, defaultLimit
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return page, limit
}

// recordsOrEmpty keeps the attendance field a JSON array even when empty.
func recordsOrEmpty(records []attendance.Record) []attendance.Record {
	if records == nil {
		return []attendance.Record{}
	}
	return records
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
