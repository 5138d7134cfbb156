package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"MarketReplay/internal/export"
	"MarketReplay/internal/notifier"
	"MarketReplay/internal/recorder"
)

// SnapshotSource journals a ledger mark of every chart slot.
type SnapshotSource interface {
	RecordSnapshots(ctx context.Context) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Session   SnapshotSource
	Recorder  recorder.Recorder
	Notifier  *notifier.TelegramNotifier
	Saver     export.Saver
	ExportDir string
	Now       func() time.Time
	Ctx       context.Context
}

// NewScheduler creates a new Scheduler. saver may be nil to disable journal export.
func NewScheduler(ctx context.Context, sess SnapshotSource, rec recorder.Recorder, tn *notifier.TelegramNotifier, saver export.Saver, exportDir string) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Session:   sess,
		Recorder:  rec,
		Notifier:  tn,
		Saver:     saver,
		ExportDir: exportDir,
		Now:       time.Now,
		Ctx:       ctx,
	}
}

// RegisterAll registers the snapshot and export jobs. An empty spec skips that job.
func (s *Scheduler) RegisterAll(snapshotCron, exportCron string) error {
	if snapshotCron != "" {
		if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
			return fmt.Errorf("register snapshot task: %w", err)
		}
	}
	if exportCron != "" && s.Saver != nil {
		if _, err := s.Cron.AddFunc(exportCron, s.exportTask); err != nil {
			return fmt.Errorf("register export task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// NotifyReset announces a ledger wipe on chartID.
func (s *Scheduler) NotifyReset(chartID string, at time.Time, cash decimal.Decimal) {
	s.trySend(notifier.FormatReset(chartID, at, cash))
}

func (s *Scheduler) snapshotTask() {
	if err := s.Session.RecordSnapshots(s.Ctx); err != nil {
		log.Printf("[ERROR] record snapshots: %v", err)
	}
}

func (s *Scheduler) exportTask() {
	log.Println("[INFO] running journal export")
	path, n, err := s.ExportDay(s.Now())
	if err != nil {
		log.Printf("[ERROR] journal export: %v", err)
		s.trySend(fmt.Sprintf("❌ Journal export failed: %v", err))
		return
	}
	s.trySend(fmt.Sprintf("📤 <b>Journal exported</b>\n\n%d fills → %s", n, filepath.Base(path)))
}

// ExportDay writes the fills journaled on day's calendar date to ExportDir.
// It returns the file path and the number of fills written.
func (s *Scheduler) ExportDay(day time.Time) (string, int, error) {
	if s.Saver == nil {
		return "", 0, fmt.Errorf("no export format configured")
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	fills, err := s.Recorder.Fills(start, start.AddDate(0, 0, 1))
	if err != nil {
		return "", 0, fmt.Errorf("read fills: %w", err)
	}
	if fills == nil {
		fills = []recorder.FillRecord{}
	}
	if err := os.MkdirAll(s.ExportDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.ExportDir, fmt.Sprintf("fills_%s.%s", start.Format("2006-01-02"), s.Saver.Extension()))
	if err := s.Saver.SaveFills(fills, path); err != nil {
		return "", 0, fmt.Errorf("save fills: %w", err)
	}
	log.Printf("[INFO] exported %d fills to %s", len(fills), path)
	return path, len(fills), nil
}

func (s *Scheduler) trySend(text string) {
	if !s.Notifier.Enabled() {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
