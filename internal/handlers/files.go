package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/piishield/backend/internal/config"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/intake"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
	"gorm.io/gorm"
)

type FileHandler struct {
	cfg    *config.Config
	intake *intake.Service
}

func NewFileHandler(cfg *config.Config, svc *intake.Service) *FileHandler {
	return &FileHandler{cfg: cfg, intake: svc}
}

// Upload accepts a multipart batch (field "files", optionally containing
// .zip archives that are expanded entry by entry) and creates one pending
// analysis session covering every accepted file.
func (h *FileHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid multipart form"})
	}

	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "No files uploaded"})
	}

	uploadDir := filepath.Join(h.cfg.UploadDir, "incoming")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to prepare upload directory"})
	}

	maxBytes := int64(h.cfg.MaxUploadSizeMB) * 1024 * 1024
	var incoming []intake.IncomingFile
	cleanup := func() {
		for _, f := range incoming {
			os.Remove(f.StoragePath)
		}
	}

	for _, upload := range uploads {
		if upload.Size > maxBytes {
			cleanup()
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"success": false,
				"message": fmt.Sprintf("File %s too large (max %d MB)", upload.Filename, h.cfg.MaxUploadSizeMB),
			})
		}

		ext := strings.ToLower(filepath.Ext(upload.Filename))
		savePath := filepath.Join(uploadDir, uuid.New().String()+ext)
		if err := c.SaveFile(upload, savePath); err != nil {
			cleanup()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to save file"})
		}

		if ext == ".zip" {
			expanded, err := intake.ExpandArchive(savePath, uploadDir, maxBytes)
			os.Remove(savePath)
			if err != nil {
				cleanup()
				if errors.Is(err, intake.ErrArchiveTooLarge) {
					return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
						"success": false,
						"message": fmt.Sprintf("Archive %s too large when decompressed (max %d MB)", upload.Filename, h.cfg.MaxUploadSizeMB),
					})
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": fmt.Sprintf("Could not read archive %s", upload.Filename),
				})
			}
			incoming = append(incoming, expanded...)
			continue
		}

		incoming = append(incoming, intake.IncomingFile{
			OriginalName: filepath.Base(upload.Filename),
			StoragePath:  savePath,
			SizeBytes:    upload.Size,
		})
	}

	session, files, err := h.intake.SubmitBatch(user, incoming)
	if err != nil {
		cleanup()
		switch {
		case errors.Is(err, intake.ErrNoValidFiles):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "No valid files in upload"})
		case errors.Is(err, intake.ErrQuotaExceeded):
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"success": false, "message": "Storage quota exceeded"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to accept upload"})
		}
	}

	database.InvalidateUserStatsCache(user.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"session_id": session.ID,
		"session":    session,
		"files":      files,
	})
}

// List returns the current user's uploaded files, newest first
func (h *FileHandler) List(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)

	var files []models.UploadedFile
	if err := database.DB.Where("user_id = ?", userID).
		Order("uploaded_at DESC").Find(&files).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to list files"})
	}

	return c.JSON(fiber.Map{"success": true, "data": files})
}

// Status returns the lifecycle status of one file
func (h *FileHandler) Status(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)
	fileID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid file id"})
	}

	var file models.UploadedFile
	if err := database.DB.Where("id = ? AND user_id = ?", fileID, userID).First(&file).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "File not found"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":            file.ID,
			"status":        file.Status,
			"error_message": file.ErrorMessage,
			"processed_at":  file.ProcessedAt,
		},
	})
}

// Delete removes a file record and its stored bytes, freeing quota.
// Files currently being processed cannot be deleted.
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	userID := middleware.GetCurrentUserID(c)
	fileID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid file id"})
	}

	var file models.UploadedFile
	if err := database.DB.Where("id = ? AND user_id = ?", fileID, userID).First(&file).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "File not found"})
	}

	if file.Status == models.FileStatusProcessing {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "File is being processed"})
	}

	if err := database.DB.Delete(&file).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to delete file"})
	}

	os.Remove(file.StoragePath)
	database.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("storage_used", gorm.Expr("GREATEST(storage_used - ?, 0)", file.SizeBytes))

	database.InvalidateUserStatsCache(userID)

	return c.JSON(fiber.Map{"success": true, "message": "File deleted"})
}
