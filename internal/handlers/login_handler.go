package handlers

import (
	"crypto/subtle"
	"net/http"

	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	User string `json:"user" binding:"required"` // id or name
	Pin  string `json:"pin" binding:"required"`
}

// Login - POST /login
// Exchanges a user's pin for a dashboard token.
func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	// 1. Validate Input JSON
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	// 2. Find an active user by id or name
	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("(id = ? OR name = ?) AND is_active = ?", input.User, input.User, true).
		First(&user).Error
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 3. Verify the pin
	if subtle.ConstantTimeCompare([]byte(user.Pin), []byte(input.Pin)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 4. Generate JWT Token
	token, err := h.Tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"role":  user.Role,
		"name":  user.Name,
	})
}
