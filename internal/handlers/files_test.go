package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/intake"
	"github.com/piishield/backend/internal/middleware"
	"github.com/piishield/backend/internal/models"
)

func newFileApp(t *testing.T) (*fiber.App, func(*models.User) string) {
	t.Helper()
	cfg := testConfig()
	cfg.UploadDir = t.TempDir()

	app := fiber.New()
	h := NewFileHandler(cfg, intake.NewService(database.DB, cfg.UploadDir))
	protected := app.Group("/api", middleware.AuthRequired(cfg))
	protected.Post("/files/upload", h.Upload)
	protected.Get("/files/:id/status", h.Status)

	return app, func(user *models.User) string { return bearerFor(t, user, cfg) }
}

func multipartZip(t *testing.T, fieldFile string, entries map[string][]byte, dirs []string) (*bytes.Buffer, string) {
	t.Helper()

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for _, dir := range dirs {
		if _, err := zw.Create(dir + "/"); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", fieldFile)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(zipBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func TestUploadExpandsZipSkippingDirectories(t *testing.T) {
	setupTestDB(t)
	app, authFor := newFileApp(t)
	alice := createTestUser(t, "alice")

	body, contentType := multipartZip(t, "batch.zip",
		map[string][]byte{"a.csv": []byte("name,email\n")},
		[]string{"subdir"},
	)

	req := httptest.NewRequest("POST", "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authFor(alice))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var files []models.UploadedFile
	database.DB.Where("user_id = ?", alice.ID).Find(&files)
	if len(files) != 1 {
		t.Fatalf("expected exactly 1 file record from zip, got %d", len(files))
	}
	if files[0].OriginalName != "a.csv" {
		t.Errorf("expected a.csv, got %q", files[0].OriginalName)
	}
	if files[0].Status != models.FileStatusQueued {
		t.Errorf("expected queued status, got %s", files[0].Status)
	}

	var session models.AnalysisSession
	if err := database.DB.Where("user_id = ?", alice.ID).First(&session).Error; err != nil {
		t.Fatalf("expected a session to be created: %v", err)
	}
	if session.Status != models.SessionStatusPending {
		t.Errorf("expected pending session, got %s", session.Status)
	}
}

func TestUploadEmptyZipRejectedWithoutPersistence(t *testing.T) {
	setupTestDB(t)
	app, authFor := newFileApp(t)
	alice := createTestUser(t, "alice")

	body, contentType := multipartZip(t, "empty.zip", nil, []string{"only-a-dir"})

	req := httptest.NewRequest("POST", "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authFor(alice))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for empty archive, got %d", resp.StatusCode)
	}

	var count int64
	database.DB.Model(&models.AnalysisSession{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no session persisted, found %d", count)
	}
	database.DB.Model(&models.UploadedFile{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no file records persisted, found %d", count)
	}
}

func TestUploadQuotaExceededIs413(t *testing.T) {
	setupTestDB(t)
	app, authFor := newFileApp(t)
	alice := createTestUser(t, "alice")
	database.DB.Model(alice).Update("storage_limit", 4)
	alice.StorageLimit = 4

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("files", "big.csv")
	fw.Write([]byte("far-more-than-four-bytes"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", authFor(alice))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	if resp.StatusCode != fiber.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestFileStatusEndpoint(t *testing.T) {
	setupTestDB(t)
	app, authFor := newFileApp(t)
	alice := createTestUser(t, "alice")
	file, _ := seedResult(t, alice)

	req := httptest.NewRequest("GET", "/api/files/"+itoa(file.ID)+"/status", nil)
	req.Header.Set("Authorization", authFor(alice))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Status models.FileStatus `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()
	if payload.Data.Status != models.FileStatusCompleted {
		t.Errorf("expected completed, got %s", payload.Data.Status)
	}
}
