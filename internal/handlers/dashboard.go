package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
)

type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

// DashboardStats is the aggregate view served to the dashboard
type DashboardStats struct {
	FilesUploaded    int64   `json:"files_uploaded"`
	FilesProcessed   int64   `json:"files_processed"`
	FilesFailed      int64   `json:"files_failed"`
	QueueLength      int64   `json:"queue_length"`
	SessionsTotal    int64   `json:"sessions_total"`
	SessionsFailed   int64   `json:"sessions_failed"`
	PIIRedactedTotal int64   `json:"pii_redacted_total"`
	AvgProcessingMs  float64 `json:"avg_processing_ms"`
	StorageUsed      int64   `json:"storage_used"`
	StorageLimit     int64   `json:"storage_limit"`
}

// Stats returns dashboard statistics for the current user, cached in
// redis for a minute and invalidated on upload and dispatch completion.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	cacheKey := fmt.Sprintf("%s%d", database.CacheKeyDashboardStats, user.ID)
	var stats DashboardStats
	if err := database.CacheGet(cacheKey, &stats); err == nil {
		return c.JSON(fiber.Map{"success": true, "data": stats, "cached": true})
	}

	fileQuery := database.DB.Model(&models.UploadedFile{}).Where("user_id = ?", user.ID)
	fileQuery.Count(&stats.FilesUploaded)

	database.DB.Model(&models.UploadedFile{}).
		Where("user_id = ? AND status = ?", user.ID, models.FileStatusCompleted).
		Count(&stats.FilesProcessed)
	database.DB.Model(&models.UploadedFile{}).
		Where("user_id = ? AND status = ?", user.ID, models.FileStatusError).
		Count(&stats.FilesFailed)
	database.DB.Model(&models.UploadedFile{}).
		Where("user_id = ? AND status IN (?, ?)", user.ID, models.FileStatusQueued, models.FileStatusProcessing).
		Count(&stats.QueueLength)

	database.DB.Model(&models.AnalysisSession{}).
		Where("user_id = ?", user.ID).Count(&stats.SessionsTotal)
	database.DB.Model(&models.AnalysisSession{}).
		Where("user_id = ? AND status = ?", user.ID, models.SessionStatusFailed).
		Count(&stats.SessionsFailed)

	database.DB.Model(&models.AnalysisResult{}).
		Where("user_id = ?", user.ID).
		Select("COALESCE(AVG(duration_ms), 0)").Scan(&stats.AvgProcessingMs)

	// PII counts live in a JSON column; sum them in application code
	var results []models.AnalysisResult
	database.DB.Select("pii_detected").Where("user_id = ?", user.ID).Find(&results)
	for _, r := range results {
		stats.PIIRedactedTotal += int64(r.PIIDetected.Total())
	}

	stats.StorageUsed = user.StorageUsed
	stats.StorageLimit = user.StorageLimit

	database.CacheSet(cacheKey, stats, database.CacheTTLDashboardStats)

	return c.JSON(fiber.Map{"success": true, "data": stats})
}
