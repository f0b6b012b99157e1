package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/piishield/backend/internal/analyzer"
	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/models"
	"gorm.io/gorm"
)

// ErrAlreadyDispatched means the session is not pending: it was already
// dispatched (possibly by a concurrent request) or has reached a
// terminal state.
var ErrAlreadyDispatched = errors.New("session already dispatched")

// Dispatcher invokes the external analyzer for a session and translates
// its outcome into persisted results and terminal statuses.
type Dispatcher struct {
	db      *gorm.DB
	client  analyzer.Client
	timeout time.Duration
}

func NewDispatcher(db *gorm.DB, client analyzer.Client, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Dispatcher{db: db, client: client, timeout: timeout}
}

// Dispatch runs the analyzer once for the session and blocks until it
// exits or times out. The session always leaves in a terminal state:
// completed when the process exits zero with parseable output (even if
// individual files report errors), failed otherwise. Per-file results
// are persisted only on process success.
func (d *Dispatcher) Dispatch(ctx context.Context, session *models.AnalysisSession) ([]models.AnalysisResult, error) {
	// Claim the session atomically; a second dispatch for the same
	// session loses the conditional update and is rejected.
	claim := d.db.Model(&models.AnalysisSession{}).
		Where("id = ? AND status = ?", session.ID, models.SessionStatusPending).
		Update("status", models.SessionStatusProcessing)
	if claim.Error != nil {
		return nil, fmt.Errorf("failed to claim session: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil, ErrAlreadyDispatched
	}
	session.Status = models.SessionStatusProcessing

	d.db.Model(&models.UploadedFile{}).
		Where("session_id = ?", session.ID).
		Update("status", models.FileStatusProcessing)

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	fileResults, err := d.client.Analyze(runCtx, session.InputDir)
	if err != nil {
		d.fail(session, diagnosticFor(err))
		return nil, err
	}

	results := d.complete(session, fileResults, time.Since(started))
	return results, nil
}

// diagnosticFor maps an analyzer error onto the stored diagnostic.
// Stderr from a nonzero exit is kept verbatim.
func diagnosticFor(err error) string {
	var exitErr *analyzer.ExitError
	if errors.As(err, &exitErr) && exitErr.Stderr != "" {
		return exitErr.Stderr
	}
	var outErr *analyzer.OutputError
	if errors.As(err, &outErr) {
		return outErr.Error()
	}
	return err.Error()
}

func (d *Dispatcher) fail(session *models.AnalysisSession, diagnostic string) {
	now := time.Now()

	d.db.Model(session).Updates(map[string]interface{}{
		"status":        models.SessionStatusFailed,
		"error_message": diagnostic,
		"completed_at":  now,
	})
	d.db.Model(&models.UploadedFile{}).
		Where("session_id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":        models.FileStatusError,
			"error_message": diagnostic,
			"processed_at":  now,
		})

	session.Status = models.SessionStatusFailed
	session.ErrorMessage = diagnostic
	session.CompletedAt = &now

	database.InvalidateUserStatsCache(session.UserID)
}

func (d *Dispatcher) complete(session *models.AnalysisSession, fileResults []analyzer.FileResult, elapsed time.Duration) []models.AnalysisResult {
	now := time.Now()
	durationMs := elapsed.Milliseconds()

	var files []models.UploadedFile
	d.db.Where("session_id = ?", session.ID).Find(&files)
	fileByName := make(map[string]*models.UploadedFile, len(files))
	for i := range files {
		fileByName[files[i].OriginalName] = &files[i]
	}

	results := make([]models.AnalysisResult, 0, len(fileResults))
	for _, fr := range fileResults {
		result := models.AnalysisResult{
			SessionID:    session.ID,
			UserID:       session.UserID,
			OriginalName: fr.OriginalFileName,
			FileType:     models.FileTypeOf(fr.OriginalFileName),
			Status:       fr.Status,
			Summary:      fr.Summary,
			PIIDetected:  fr.PIIDetected,
			KeyFindings:  fr.KeyFindings,
			CleansedPath: fr.CleansedFilePath,
			DurationMs:   durationMs,
			ErrorMessage: fr.Message,
		}
		for _, v := range fr.Vulnerabilities {
			result.Findings = append(result.Findings, models.Finding{
				Description: v.Description,
				Severity:    v.Severity,
			})
		}

		file := fileByName[fr.OriginalFileName]
		if file != nil {
			result.FileID = &file.ID
		}
		d.db.Create(&result)
		results = append(results, result)

		if file != nil {
			status := models.FileStatusCompleted
			if fr.Status == analyzer.StatusError {
				status = models.FileStatusError
			}
			d.db.Model(file).Updates(map[string]interface{}{
				"status":        status,
				"error_message": fr.Message,
				"processed_at":  now,
			})
			delete(fileByName, fr.OriginalFileName)
		}
	}

	// Files the analyzer never reported on are left in error, not limbo
	for _, file := range fileByName {
		d.db.Model(file).Updates(map[string]interface{}{
			"status":        models.FileStatusError,
			"error_message": "analyzer reported no result for this file",
			"processed_at":  now,
		})
	}

	// Per-file errors do not fail the session; session-level failure is
	// reserved for process-level failure.
	d.db.Model(session).Updates(map[string]interface{}{
		"status":       models.SessionStatusCompleted,
		"completed_at": now,
	})
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = &now

	database.InvalidateUserStatsCache(session.UserID)
	return results
}
