package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-sync/internal/ai"
	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/config"
	"go-pos-sync/internal/database"
	"go-pos-sync/internal/handlers"
	"go-pos-sync/internal/logging"
	"go-pos-sync/internal/notify"
	"go-pos-sync/internal/processor"
	"go-pos-sync/internal/server"
	"go-pos-sync/internal/storage"
	"go-pos-sync/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/logger"
)

func main() {
	// backoffice hash-key <key> prints a value for SYNC_API_KEY_HASH.
	if len(os.Args) == 3 && os.Args[1] == "hash-key" {
		hash, err := auth.HashKey(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	config.LoadEnv()
	log := logging.Setup("backoffice")
	if err := run(log); err != nil {
		log.Error("back office stopped", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.BackOfficeFromEnv()
	if err != nil {
		return err
	}
	if logging.ConfigFromEnv().Environment == logging.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	dbLog := logger.Warn
	if gin.Mode() == gin.DebugMode {
		dbLog = logger.Info
	}
	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN, dbLog)
	if err != nil {
		return err
	}

	// Product cache: Redis when configured, otherwise straight to the DB.
	var productCache cache.ProductCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			log.Warn("⚠️ redis unavailable, product cache disabled", "err", err)
		} else {
			defer rc.Close()
			productCache = rc
		}
	}

	// Uploads: S3 when a bucket is set, otherwise ./uploads.
	var uploader storage.Uploader = storage.Disk{Dir: cfg.UploadDir, BaseURL: cfg.BaseURL}
	uploadDir := cfg.UploadDir
	if cfg.S3.Enabled() {
		s3, err := storage.NewS3(context.Background(), cfg.S3)
		if err != nil {
			return err
		}
		uploader, uploadDir = s3, ""
		log.Info("image uploads go to S3", "bucket", cfg.S3.Bucket)
	}

	hub := notify.NewHub(log)
	defer hub.Close()

	proc := processor.New(db,
		processor.WithLogger(log),
		processor.WithNotifier(handlers.ChangeNotifier(productCache, hub, log)),
	)

	h := &handlers.Handler{
		DB:         db,
		Proc:       proc,
		Cache:      productCache,
		Uploader:   uploader,
		Tokens:     auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Assistant:  ai.NewAssistant(db, proc, cfg.GeminiAPIKey, log),
		Hub:        hub,
		InstanceID: utils.DeviceID("OFFICE"),
		Log:        log,
	}
	if !h.Assistant.Configured() {
		log.Info("🔒 AI assistant disabled, GEMINI_API_KEY not set")
	}

	router := server.NewRouter(h, server.Options{
		Keys:        auth.NewKeyVerifier(cfg.APIKey, cfg.APIKeyHash),
		Permissive:  cfg.Permissive,
		CORSOrigins: cfg.CORSOrigins,
		UploadDir:   uploadDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("🚀 back office starting", "url", cfg.BaseURL, "instance", h.InstanceID)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	return srv.Shutdown(shutdownCtx)
}
