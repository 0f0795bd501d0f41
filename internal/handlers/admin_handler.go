package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/beatvault/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AdminHandler struct {
	userService  *services.UserService
	beatService  *services.BeatService
	auditService *services.AuditService
}

func NewAdminHandler(userService *services.UserService, beatService *services.BeatService, auditService *services.AuditService) *AdminHandler {
	return &AdminHandler{
		userService:  userService,
		beatService:  beatService,
		auditService: auditService,
	}
}

// ListUsers returns all users with pagination
// GET /admin/users?page=1&limit=20
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	users, total, err := h.userService.GetAllUsers(offset, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to retrieve users")
		return
	}

	userList := make([]gin.H, len(users))
	for i, user := range users {
		userList[i] = gin.H{
			"id":           user.ID,
			"username":     user.Username,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"is_admin":     user.IsAdmin,
			"is_active":    user.IsActive,
			"created_at":   user.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"users": userList,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// SetUserActive activates or deactivates a user account
// PUT /admin/users/:id/active
func (h *AdminHandler) SetUserActive(c *gin.Context) {
	adminID, ok := mustUserID(c)
	if !ok {
		return
	}

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid user ID")
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "is_active is required")
		return
	}

	if userID == adminID && !*req.IsActive {
		fail(c, http.StatusBadRequest, "cannot deactivate your own account")
		return
	}

	if err := h.userService.UpdateUserActive(userID, *req.IsActive); err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	action := "user_activate"
	if !*req.IsActive {
		action = "user_deactivate"
	}
	ip := c.ClientIP()
	go func() {
		if err := h.auditService.LogAction(&adminID, action, "user", userID, nil, ip); err != nil {
			log.Printf("[Admin] Audit log failed: %v", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "user updated", "id": userID, "is_active": *req.IsActive})
}

// SetBeatActive toggles a beat's listing flag without touching its objects
// PUT /admin/beats/:id/active
func (h *AdminHandler) SetBeatActive(c *gin.Context) {
	adminID, ok := mustUserID(c)
	if !ok {
		return
	}

	beatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid beat ID")
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "is_active is required")
		return
	}

	if err := h.beatService.SetActive(c.Request.Context(), beatID, adminID, true, *req.IsActive); err != nil {
		failFromError(c, err)
		return
	}

	action := "beat_activate"
	if !*req.IsActive {
		action = "beat_deactivate"
	}
	ip := c.ClientIP()
	go func() {
		if err := h.auditService.LogAction(&adminID, action, "beat", beatID, nil, ip); err != nil {
			log.Printf("[Admin] Audit log failed: %v", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "beat updated", "id": beatID, "is_active": *req.IsActive})
}

// GetAuditLogs returns recent audit entries
// GET /admin/audit-logs?page=1&limit=50&action=beat_delete
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	logs, total, err := h.auditService.GetRecentActions(page, limit, c.Query("action"))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to retrieve audit logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}
