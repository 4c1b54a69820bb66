package services

import (
	"context"
	"testing"
	"time"

	"chatbridge/models"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentMessage(t *testing.T, app *App) *models.Message {
	t.Helper()
	ctx := context.Background()
	ana := seedUser(t, app.DB, "ana", models.USER_ROLE_SALES)
	thread, err := app.Threads.CreateGroup(ctx, "Status", ana, nil)
	require.NoError(t, err)
	msg := models.Message{Content: "oi", Source: models.CHAT_SOURCE_INTERNAL, Status: models.MESSAGE_STATUS_SENT}
	require.NoError(t, app.Threads.AppendMessage(ctx, thread, &msg, false))
	return &msg
}

func TestApplyStatusMovesForwardOnly(t *testing.T) {
	ctx := context.Background()
	pusher := &recordingPusher{}
	app := newTestApp(t, "", pusher)
	msg := sentMessage(t, app)

	steps := []struct {
		to      string
		applied bool
		want    string
	}{
		{models.MESSAGE_STATUS_DELIVERED, true, models.MESSAGE_STATUS_DELIVERED},
		{models.MESSAGE_STATUS_DELIVERED, false, models.MESSAGE_STATUS_DELIVERED},
		{models.MESSAGE_STATUS_SENT, false, models.MESSAGE_STATUS_DELIVERED},
		{models.MESSAGE_STATUS_FAILED, false, models.MESSAGE_STATUS_DELIVERED},
		{models.MESSAGE_STATUS_READ, true, models.MESSAGE_STATUS_READ},
		{models.MESSAGE_STATUS_DELIVERED, false, models.MESSAGE_STATUS_READ},
	}
	for _, step := range steps {
		applied, err := app.Tracker.ApplyStatus(ctx, msg.ID, step.to)
		require.NoError(t, err)
		assert.Equal(t, step.applied, applied, "to %s", step.to)

		stored, err := app.Threads.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, stored.Status)
	}
	assert.Equal(t, 2, pusher.count(EVENT_MESSAGE_STATUS))
}

func TestApplyStatusFailedIsTerminal(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	msg := sentMessage(t, app)

	applied, err := app.Tracker.ApplyStatus(ctx, msg.ID, models.MESSAGE_STATUS_FAILED)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = app.Tracker.ApplyStatus(ctx, msg.ID, models.MESSAGE_STATUS_READ)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyStatusErrors(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	msg := sentMessage(t, app)

	_, err := app.Tracker.ApplyStatus(ctx, msg.ID, "seen")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = app.Tracker.ApplyStatus(ctx, "missing", models.MESSAGE_STATUS_READ)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = app.Tracker.ApplyProviderStatus(ctx, "wamid.unknown", "read")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = app.Tracker.ApplyProviderStatus(ctx, "wamid.unknown", "deleted")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestApplyStatusReportsLostRaces(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	msg := sentMessage(t, app)

	// another writer flips the row right before every conditional update
	flip := map[string]string{models.MESSAGE_STATUS_SENT: models.MESSAGE_STATUS_PENDING, models.MESSAGE_STATUS_PENDING: models.MESSAGE_STATUS_SENT}
	current := msg.Status
	app.DB.Callback().Update().Before("gorm:update").Register("test:interleave", func(scope *gorm.Scope) {
		if scope.TableName() != "messages" {
			return
		}
		current = flip[current]
		scope.NewDB().Exec("UPDATE messages SET status = ? WHERE id = ?", current, msg.ID)
	})

	applied, err := app.Tracker.ApplyStatus(ctx, msg.ID, models.MESSAGE_STATUS_DELIVERED)
	assert.False(t, applied)
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestApplyProviderStatusParksUnknownIDs(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, "", nil)
	msg := sentMessage(t, app)

	_, err := app.Tracker.ApplyProviderStatus(ctx, "wamid.late", "read")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = app.Tracker.ApplyProviderStatus(ctx, "wamid.late", "delivered")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = app.Tracker.ApplyProviderStatus(ctx, "", "read")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// replay is a no-op until the id is stored
	assert.Zero(t, app.Tracker.ApplyParkedStatuses(ctx, "wamid.other"))

	require.NoError(t, app.DB.Model(&models.Message{}).Where("id = ?", msg.ID).Update("provider_message_id", "wamid.late").Error)
	assert.Equal(t, 1, app.Tracker.ApplyParkedStatuses(ctx, "wamid.late"))

	stored, err := app.Threads.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MESSAGE_STATUS_READ, stored.Status)
	assert.Zero(t, app.Tracker.ApplyParkedStatuses(ctx, "wamid.late"))
}

func TestAdvanceStatusSchedulesJobs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tracker := NewStatusTracker(db, nil, time.Second, 2*time.Second)

	before := time.Now().UTC()
	require.NoError(t, tracker.AdvanceStatus(ctx, "m1", "t1"))

	var jobs []models.StatusJob
	require.NoError(t, db.Order("scheduled_at asc").Find(&jobs).Error)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.MESSAGE_STATUS_DELIVERED, jobs[0].TargetStatus)
	assert.Equal(t, models.STATUS_JOB_PENDING, jobs[0].Status)
	assert.Equal(t, models.MESSAGE_STATUS_READ, jobs[1].TargetStatus)
	assert.WithinDuration(t, before.Add(time.Second), *jobs[0].ScheduledAt, time.Second)
	assert.WithinDuration(t, before.Add(3*time.Second), *jobs[1].ScheduledAt, time.Second)
}
