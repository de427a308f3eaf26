package api

import (
	"net/http"

	"github.com/ZanzyTHEbar/team-pulse/internal/auth"
	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=128"`
}

type viewerRequest struct {
	Password string `json:"password" binding:"required,max=128"`
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Respond(c, bindError(err))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if appErr := errors.ToAppError(err); appErr.Category == errors.CategoryUnauthorized {
			h.logger.SecurityLogger("admin_login_failed", c.ClientIP(), c.GetHeader("User-Agent"),
				map[string]interface{}{"username": req.Username, "request_id": c.GetString("request_id")})
		}
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":       result.User.ID,
			"username": result.User.Username,
		},
	})
}

func (h *Handler) viewerAuth(c *gin.Context) {
	var req viewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Respond(c, bindError(err))
		return
	}

	token, err := h.auth.ViewerAccess(req.Password)
	if err != nil {
		h.logger.SecurityLogger("viewer_access_denied", c.ClientIP(), c.GetHeader("User-Agent"),
			map[string]interface{}{"request_id": c.GetString("request_id")})
		c.JSON(http.StatusUnauthorized, gin.H{"access": false, "error": "Invalid password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": true, "token": token})
}

func (h *Handler) me(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		errors.Respond(c, errors.NewUnauthorizedError("missing credentials"))
		return
	}

	user, err := h.store.GetAdminByUsername(c.Request.Context(), claims.Username)
	if err != nil {
		if errors.IsNotFound(err) {
			errors.Respond(c, errors.NewUnauthorizedError("account no longer exists"))
			return
		}
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
