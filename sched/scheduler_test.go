package sched

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	cvtest "github.com/casevine/casevine/internal/testing"
)

func newTestScheduler(t *testing.T) (*Scheduler, *Store) {
	t.Helper()
	db := cvtest.CreateTestDB(t)
	store := NewStore(db)
	return NewScheduler(store, nil, zaptest.NewLogger(t).Sugar()), store
}

func TestScheduleWebPush(t *testing.T) {
	s, store := newTestScheduler(t)

	job := WebPushJob{
		TaskID:      uuid.New(),
		RecipientID: uuid.New(),
		Content:     "Reminder",
		FireAt:      time.Now().Add(5 * time.Minute),
	}
	s.ScheduleWebPush(job)

	assert.True(t, s.WebPushJobExists(job.TaskID, job.RecipientID))

	row, err := store.Get(IdentityFor(KindWebPush, job.TaskID.String(), job.RecipientID.String()))
	require.NoError(t, err)
	assert.Equal(t, "Reminder", row.Payload["content"])
	assert.Equal(t, job.RecipientID.String(), row.Payload["recipientId"])
}

func TestScheduleWebPushMissingFieldsIsNoOp(t *testing.T) {
	s, store := newTestScheduler(t)

	s.ScheduleWebPush(WebPushJob{RecipientID: uuid.New(), FireAt: time.Now().Add(time.Minute)}) // no task
	s.ScheduleWebPush(WebPushJob{TaskID: uuid.New(), FireAt: time.Now().Add(time.Minute)})      // no recipient
	s.ScheduleWebPush(WebPushJob{TaskID: uuid.New(), RecipientID: uuid.New()})                  // no fire time

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestScheduleEmail(t *testing.T) {
	s, _ := newTestScheduler(t)

	job := EmailJob{
		TaskID:            uuid.New(),
		EmailTemplate:     "meeting-reminder",
		ReceiverEmail:     "client@example.com",
		Subject:           "Upcoming meeting",
		TemplateVariables: map[string]any{"meetingTitle": "Deposition prep"},
		FireAt:            time.Now().Add(time.Hour),
	}
	s.ScheduleEmail(job)

	assert.True(t, s.EmailJobExists(job.TaskID, job.ReceiverEmail))
	assert.False(t, s.EmailJobExists(job.TaskID, "other@example.com"))
}

func TestIdempotentReschedule(t *testing.T) {
	s, store := newTestScheduler(t)

	job := WebPushJob{
		TaskID:      uuid.New(),
		RecipientID: uuid.New(),
		Content:     "Reminder",
		FireAt:      time.Now().Add(5 * time.Minute),
	}
	s.ScheduleWebPush(job)

	job.FireAt = time.Now().Add(45 * time.Minute)
	s.ScheduleWebPush(job)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	row, err := store.Get(IdentityFor(KindWebPush, job.TaskID.String(), job.RecipientID.String()))
	require.NoError(t, err)
	assert.Equal(t, job.FireAt.UnixNano(), row.FireAt.UnixNano())
}

func TestUpdateActsAsUpsert(t *testing.T) {
	s, store := newTestScheduler(t)

	// Update of a job that was never scheduled still schedules it
	job := WebPushJob{
		TaskID:      uuid.New(),
		RecipientID: uuid.New(),
		Content:     "Rescheduled",
		FireAt:      time.Now().Add(time.Hour),
	}
	s.UpdateWebPush(job)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteAllForTask(t *testing.T) {
	s, _ := newTestScheduler(t)

	taskID := uuid.New()
	otherTask := uuid.New()
	recipient := uuid.New()
	fireAt := time.Now().Add(time.Hour)

	s.ScheduleWebPush(WebPushJob{TaskID: taskID, RecipientID: recipient, Content: "a", FireAt: fireAt})
	s.ScheduleEmail(EmailJob{TaskID: taskID, ReceiverEmail: "a@example.com", TemplateVariables: map[string]any{}, FireAt: fireAt})
	s.ScheduleWebPush(WebPushJob{TaskID: otherTask, RecipientID: recipient, Content: "b", FireAt: fireAt})

	s.DeleteAllForTask(taskID)

	assert.False(t, s.WebPushJobExists(taskID, recipient))
	assert.False(t, s.EmailJobExists(taskID, "a@example.com"))
	assert.True(t, s.WebPushJobExists(otherTask, recipient))
}

func TestDeleteOfAbsentJobIsNotAnError(t *testing.T) {
	s, _ := newTestScheduler(t)
	// Must not panic or surface anything
	s.DeleteWebPush(uuid.New(), uuid.New())
	s.DeleteEmail(uuid.New(), "ghost@example.com")
	s.DeletePaymentRelease(uuid.New())
}

func TestSchedulePaymentRelease(t *testing.T) {
	s, _ := newTestScheduler(t)

	paymentID := uuid.New()
	s.SchedulePaymentRelease(paymentID, time.Now().Add(24*time.Hour))
	assert.True(t, s.PaymentReleaseJobExists(paymentID))

	s.DeletePaymentRelease(paymentID)
	assert.False(t, s.PaymentReleaseJobExists(paymentID))
}

func TestStatusWithoutEngine(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.ScheduleWebPush(WebPushJob{
		TaskID:      uuid.New(),
		RecipientID: uuid.New(),
		FireAt:      time.Now().Add(time.Minute),
	})

	st := s.Status()
	assert.Equal(t, EngineName, st.Engine)
	assert.Equal(t, 1, st.ScheduledJobs)
}

// Backend failures must be absorbed: scheduling is advisory, never
// transactional with the caller's business operation.
func TestBackendFailuresAreAbsorbed(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := NewScheduler(NewStore(mockDB), nil, zaptest.NewLogger(t).Sugar())

	t.Run("schedule error is swallowed", func(t *testing.T) {
		mock.ExpectExec("INSERT OR REPLACE INTO scheduled_jobs").
			WillReturnError(assert.AnError)

		// Must not panic, must not propagate
		s.ScheduleWebPush(WebPushJob{
			TaskID:      uuid.New(),
			RecipientID: uuid.New(),
			Content:     "Reminder",
			FireAt:      time.Now().Add(time.Minute),
		})
	})

	t.Run("exists fails closed", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnError(assert.AnError)

		assert.False(t, s.WebPushJobExists(uuid.New(), uuid.New()))
	})

	t.Run("delete error is swallowed", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM scheduled_jobs").
			WillReturnError(assert.AnError)

		s.DeleteWebPush(uuid.New(), uuid.New())
	})

	t.Run("status never fails", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT").
			WillReturnError(assert.AnError)

		st := s.Status()
		assert.Zero(t, st.ScheduledJobs)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
