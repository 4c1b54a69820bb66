package workers

import (
	"context"
	"errors"
	"time"

	"chatbridge/models"
	"chatbridge/services"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

const statusBatchSize = 50

// StatusApplier is the part of the status tracker the worker drives.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, messageID, status string) (bool, error)
}

// StartStatusProcessor applies due StatusJobs every second until ctx is done.
// The returned channel is closed once the loop has exited.
func StartStatusProcessor(ctx context.Context, db *gorm.DB, tracker StatusApplier) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ProcessDueStatusJobs(ctx, db, tracker, time.Now().UTC())
			}
		}
	}()
	return done
}

// ProcessDueStatusJobs applies the pending jobs scheduled up to now and
// returns how many it claimed. Jobs run in schedule order so that delivered
// lands before read.
func ProcessDueStatusJobs(ctx context.Context, db *gorm.DB, tracker StatusApplier, now time.Time) int {
	var jobs []models.StatusJob
	if err := db.
		Where("status = ?", models.STATUS_JOB_PENDING).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
		Order("scheduled_at asc, id asc").
		Limit(statusBatchSize).
		Find(&jobs).Error; err != nil {
		zap.L().Error("status worker: query error", zap.Error(err))
		return 0
	}

	claimed := 0
	for _, job := range jobs {
		// lock otimista: só processa se conseguir mudar status
		res := db.Model(&models.StatusJob{}).
			Where("id = ? AND status = ?", job.ID, models.STATUS_JOB_PENDING).
			Update("status", models.STATUS_JOB_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		claimed++
		handleStatusJob(ctx, db, tracker, job)
	}
	return claimed
}

func handleStatusJob(ctx context.Context, db *gorm.DB, tracker StatusApplier, job models.StatusJob) {
	final := models.STATUS_JOB_DONE

	applied, err := tracker.ApplyStatus(ctx, job.MessageID, job.TargetStatus)
	switch {
	case errors.Is(err, services.ErrNotFound):
		// mensagem apagada junto com o grupo
		final = models.STATUS_JOB_SKIPPED
	case err != nil:
		zap.L().Warn("status worker: apply failed",
			zap.Int64("job", job.ID),
			zap.String("message", job.MessageID),
			zap.Error(err))
		final = models.STATUS_JOB_SKIPPED
	case !applied:
		final = models.STATUS_JOB_SKIPPED
	}

	t := time.Now().UTC()
	if err := db.Model(&models.StatusJob{}).Where("id = ?", job.ID).Updates(map[string]any{
		"status":       final,
		"processed_at": &t,
	}).Error; err != nil {
		zap.L().Error("status worker: finish job", zap.Int64("job", job.ID), zap.Error(err))
	}
}
