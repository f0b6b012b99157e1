package handlers

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
)

type ResultHandler struct{}

func NewResultHandler() *ResultHandler {
	return &ResultHandler{}
}

// List returns all of the current user's analysis results, newest first
func (h *ResultHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)

	var results []models.AnalysisResult
	if err := database.DB.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&results).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to list results"})
	}

	return c.JSON(fiber.Map{"success": true, "data": results})
}

// Latest returns the results of the user's most recently completed session
func (h *ResultHandler) Latest(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)

	var session models.AnalysisSession
	if err := database.DB.Where("user_id = ? AND status = ?", userID, models.SessionStatusCompleted).
		Order("completed_at DESC").First(&session).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "No completed sessions"})
	}

	var results []models.AnalysisResult
	if err := database.DB.Where("session_id = ?", session.ID).Find(&results).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load results"})
	}

	return c.JSON(fiber.Map{"success": true, "session": session, "data": results})
}

// ByFile returns the result for one uploaded file
func (h *ResultHandler) ByFile(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)
	fileID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid file id"})
	}

	// Ownership is enforced in the query itself: another user's id
	// behaves exactly like a missing one.
	var result models.AnalysisResult
	if err := database.DB.Where("file_id = ? AND user_id = ?", fileID, userID).First(&result).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Result not found"})
	}

	return c.JSON(fiber.Map{"success": true, "data": result})
}

// Download streams the cleansed artifact produced by the analyzer
func (h *ResultHandler) Download(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)
	resultID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid result id"})
	}

	var result models.AnalysisResult
	if err := database.DB.Where("id = ? AND user_id = ?", resultID, userID).First(&result).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Result not found"})
	}

	if result.CleansedPath == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "No cleansed artifact for this result"})
	}
	if _, err := os.Stat(result.CleansedPath); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Cleansed artifact no longer available"})
	}

	return c.Download(result.CleansedPath, "cleansed_"+filepath.Base(result.OriginalName))
}
