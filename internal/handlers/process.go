package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/piishield/backend/internal/analyzer"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/intake"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
)

type ProcessHandler struct {
	dispatcher *intake.Dispatcher
	intake     *intake.Service
}

func NewProcessHandler(dispatcher *intake.Dispatcher, svc *intake.Service) *ProcessHandler {
	return &ProcessHandler{dispatcher: dispatcher, intake: svc}
}

// ProcessSession dispatches the external analyzer for a session and
// blocks until it reaches a terminal state.
func (h *ProcessHandler) ProcessSession(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)
	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid session id"})
	}

	var session models.AnalysisSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Session not found"})
	}

	return h.dispatch(c, &session)
}

// ProcessFile is the single-file variant: the file is wrapped in its
// own session and analyzed alone, leaving its batch siblings untouched.
func (h *ProcessHandler) ProcessFile(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	fileID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid file id"})
	}

	var file models.UploadedFile
	if err := database.DB.Where("id = ? AND user_id = ?", fileID, user.ID).First(&file).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "File not found"})
	}

	if file.SessionID == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "File has no analysis session"})
	}

	var session models.AnalysisSession
	if err := database.DB.First(&session, *file.SessionID).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "File has no analysis session"})
	}
	if session.Status != models.SessionStatusPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "File already dispatched in session",
		})
	}

	// A file that is its whole batch already has a single-file session
	if session.FileCount == 1 {
		return h.dispatch(c, &session)
	}

	wrapped, err := h.intake.WrapFile(user, &file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to prepare file for analysis"})
	}
	return h.dispatch(c, wrapped)
}

func (h *ProcessHandler) dispatch(c *fiber.Ctx, session *models.AnalysisSession) error {
	results, err := h.dispatcher.Dispatch(c.Context(), session)
	if err != nil {
		if errors.Is(err, intake.ErrAlreadyDispatched) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Session already dispatched",
				"status":  session.Status,
			})
		}

		status := fiber.StatusInternalServerError
		var startErr *analyzer.StartError
		if errors.As(err, &startErr) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"success":    false,
			"message":    "Analysis failed",
			"status":     session.Status,
			"diagnostic": session.ErrorMessage,
		})
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"status":       session.Status,
		"completed_at": session.CompletedAt,
		"results":      results,
	})
}
