package handlers

import (
	"net/http"

	"go-pos-sync/internal/storage"

	"github.com/gin-gonic/gin"
)

// GetProducts - GET /api/products
// Cache-aside: serve from Redis when warm, otherwise load and fill it.
func (h *Handler) GetProducts(c *gin.Context) {
	ctx := c.Request.Context()

	if h.Cache != nil {
		products, hit, err := h.Cache.Products(ctx)
		if err != nil {
			h.log().Warn("product cache read failed", "err", err)
		}
		if hit {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, products)
			return
		}
	}

	products, err := h.Proc.Products(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	if h.Cache != nil {
		if err := h.Cache.SetProducts(ctx, products); err != nil {
			h.log().Warn("product cache write failed", "err", err)
		}
	}
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, products)
}

// UploadImage - POST /api/upload
func (h *Handler) UploadImage(c *gin.Context) {
	// 1. Get the file from the request
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	// 2. Only images, under a generated name
	name, err := storage.ObjectName(file.Filename, h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 3. Hand it to disk or S3
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable upload"})
		return
	}
	defer src.Close()

	url, err := h.Uploader.Save(c.Request.Context(), name, src)
	if err != nil {
		h.log().Error("upload failed", "file", file.Filename, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"url":     url,
	})
}
