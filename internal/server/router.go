// Package server wires the back-office routes.
package server

import (
	"time"

	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/handlers"
	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	Keys        *auth.KeyVerifier
	Permissive  bool
	CORSOrigins []string
	// UploadDir is served under /uploads when images are kept on disk.
	UploadDir string
}

// NewRouter builds the gin engine for h.
func NewRouter(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"} // dashboard dev server
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-api-key", "x-peer-id"},
		ExposeHeaders:    []string{"Content-Length", "X-Cache"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.Health)
	r.POST("/login", h.Login)
	if opts.UploadDir != "" {
		r.Static("/uploads", opts.UploadDir)
	}

	// --- PROTECTED ROUTES ---
	api := r.Group("/api")
	api.Use(middleware.AccessKey(opts.Keys, h.Tokens, opts.Permissive))
	{
		// Terminals
		api.POST("/sync", h.PushSync)
		api.GET("/sync", h.GetSync)
		api.POST("/sync/full", h.FullSync)
		api.POST("/transaction", h.PostTransaction)
		api.GET("/products", h.GetProducts)
		api.POST("/upload", h.UploadImage)
		api.GET("/ws", h.Notifications)

		// Dashboard
		staff := api.Group("/")
		staff.Use(middleware.RequireRole(models.RoleAdmin, models.RoleManager))
		{
			staff.GET("/reports", h.GetSalesReport)
			staff.GET("/reports/valuation", h.GetStockValuation)
		}

		// ADMIN ONLY
		admin := api.Group("/")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/ask", h.AskAI)
		}
	}
	return r
}
