package handlers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jlaffaye/ftp"
	"github.com/piishield/backend/internal/config"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
)

// ArchiveHandler exports a session's cleansed artifacts to an FTP
// server for long-term retention. Disabled unless FTP_HOST is set.
type ArchiveHandler struct {
	cfg *config.Config
}

func NewArchiveHandler(cfg *config.Config) *ArchiveHandler {
	return &ArchiveHandler{cfg: cfg}
}

// ArchiveSession uploads every cleansed artifact of a completed session
// to the configured FTP server under FTP_DIR/<username>/<session id>/.
func (h *ArchiveHandler) ArchiveSession(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	if h.cfg.FTPHost == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "Archive storage is not configured",
		})
	}

	sessionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid session id"})
	}

	var session models.AnalysisSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, user.ID).First(&session).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Session not found"})
	}
	if session.Status != models.SessionStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "Only completed sessions can be archived"})
	}

	var results []models.AnalysisResult
	database.DB.Where("session_id = ? AND cleansed_path <> ''", session.ID).Find(&results)
	if len(results) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "No cleansed artifacts to archive"})
	}

	conn, err := ftp.Dial(
		fmt.Sprintf("%s:%d", h.cfg.FTPHost, h.cfg.FTPPort),
		ftp.DialWithTimeout(30*time.Second),
	)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "message": "Archive server unreachable"})
	}
	defer conn.Quit()

	if err := conn.Login(h.cfg.FTPUser, h.cfg.FTPPassword); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "message": "Archive server rejected credentials"})
	}

	remoteDir := fmt.Sprintf("%s/%s/%d", h.cfg.FTPDir, user.Username, session.ID)
	mkdirAll(conn, remoteDir)

	uploaded := 0
	for _, result := range results {
		f, err := os.Open(result.CleansedPath)
		if err != nil {
			log.Printf("Archive: skipping %s: %v", result.CleansedPath, err)
			continue
		}

		remotePath := remoteDir + "/" + filepath.Base(result.CleansedPath)
		err = conn.Stor(remotePath, f)
		f.Close()
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"message": fmt.Sprintf("Upload failed after %d file(s)", uploaded),
			})
		}
		uploaded++
	}

	log.Printf("Archive: uploaded %d artifact(s) for session %d to %s", uploaded, session.ID, remoteDir)

	return c.JSON(fiber.Map{
		"success":  true,
		"uploaded": uploaded,
		"path":     remoteDir,
	})
}

// mkdirAll creates the remote directory chain, ignoring errors for
// segments that already exist.
func mkdirAll(conn *ftp.ServerConn, dir string) {
	path := ""
	for _, segment := range strings.Split(dir, "/") {
		if segment == "" {
			continue
		}
		if path == "" {
			path = segment
		} else {
			path = path + "/" + segment
		}
		conn.MakeDir(path)
	}
}
