package services

import (
	"log"
	"sync"
	"time"

	"github.com/piishield/backend/internal/database"
	"github.com/piishield/backend/internal/models"
)

const staleDiagnostic = "analysis interrupted: server restarted while session was processing"

// StaleSessionCleanupService periodically fails sessions stuck in
// processing. A session can only be left in processing if the server
// died mid-dispatch; the dispatcher itself always reaches a terminal
// state. Without this sweep such sessions would poll as processing
// forever.
type StaleSessionCleanupService struct {
	staleThreshold time.Duration // How old before a processing session is considered stuck
	checkInterval  time.Duration // How often to check
	stopChan       chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	isRunning      bool
}

// NewStaleSessionCleanupService creates a new stale session cleanup service
func NewStaleSessionCleanupService(staleMinutes int) *StaleSessionCleanupService {
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	return &StaleSessionCleanupService{
		staleThreshold: time.Duration(staleMinutes) * time.Minute,
		checkInterval:  5 * time.Minute,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the cleanup service
func (s *StaleSessionCleanupService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	log.Printf("StaleSessionCleanupService started (threshold: %v, interval: %v)",
		s.staleThreshold, s.checkInterval)
}

// Stop stops the cleanup service
func (s *StaleSessionCleanupService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Println("StaleSessionCleanupService stopped")
}

func (s *StaleSessionCleanupService) run() {
	defer s.wg.Done()

	// Sweep once shortly after startup to recover sessions orphaned by
	// the previous run, then on the regular interval.
	select {
	case <-time.After(30 * time.Second):
		s.cleanup()
	case <-s.stopChan:
		return
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *StaleSessionCleanupService) cleanup() {
	cutoff := time.Now().Add(-s.staleThreshold)
	now := time.Now()

	var stale []models.AnalysisSession
	if err := database.DB.
		Where("status = ? AND updated_at < ?", models.SessionStatusProcessing, cutoff).
		Find(&stale).Error; err != nil {
		log.Printf("StaleSessionCleanup: query failed: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	for _, session := range stale {
		database.DB.Model(&session).Updates(map[string]interface{}{
			"status":        models.SessionStatusFailed,
			"error_message": staleDiagnostic,
			"completed_at":  now,
		})
		database.DB.Model(&models.UploadedFile{}).
			Where("session_id = ? AND status = ?", session.ID, models.FileStatusProcessing).
			Updates(map[string]interface{}{
				"status":        models.FileStatusError,
				"error_message": staleDiagnostic,
				"processed_at":  now,
			})
	}

	database.InvalidateStatsCache()
	log.Printf("StaleSessionCleanup: failed %d stuck session(s)", len(stale))
}
