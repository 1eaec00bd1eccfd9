package payments

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casevine/casevine/errors"
)

// Payment statuses. A payment is escrowed when the client funds it and
// released once the hold period elapses and the provider is paid out.
const (
	StatusEscrowed = "escrowed"
	StatusReleased = "released"
)

// Payment is an escrowed client payment row.
type Payment struct {
	ID          uuid.UUID
	TaskID      uuid.UUID
	AmountCents int64
	Status      string
	CreatedAt   time.Time
	ReleasedAt  *time.Time
}

// Service manages escrowed payments and their scheduled release.
type Service struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// NewService creates a payment service over the database.
func NewService(db *sql.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Escrow records a funded payment awaiting release.
func (s *Service) Escrow(paymentID, taskID uuid.UUID, amountCents int64) error {
	if amountCents <= 0 {
		return errors.Wrap(errors.ErrInvalidArgument, "amount must be positive")
	}

	_, err := s.db.Exec(`
		INSERT INTO payments (id, task_id, amount_cents, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		paymentID.String(), taskID.String(), amountCents, StatusEscrowed,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to escrow payment %s", paymentID)
	}

	s.log.Infow("Payment escrowed",
		"payment_id", paymentID,
		"task_id", taskID,
		"amount_cents", amountCents,
	)
	return nil
}

// ExecuteScheduledPaymentRelease implements sched.PaymentReleaser. The
// release transitions escrowed -> released exactly once; a payment that is
// already released (or was refunded out of band) is left untouched.
func (s *Service) ExecuteScheduledPaymentRelease(paymentID uuid.UUID) error {
	result, err := s.db.Exec(`
		UPDATE payments
		SET status = ?, released_at = ?
		WHERE id = ? AND status = ?`,
		StatusReleased, time.Now().UTC().Format(time.RFC3339),
		paymentID.String(), StatusEscrowed,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to release payment %s", paymentID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		exists, err := s.exists(paymentID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(errors.ErrNotFound, "payment %s", paymentID)
		}
		// Known payment in a non-escrowed state; nothing to do.
		s.log.Warnw("Payment not in escrow, skipping release", "payment_id", paymentID)
		return nil
	}

	s.log.Infow("Payment released", "payment_id", paymentID)
	return nil
}

// Get fetches a payment by id.
func (s *Service) Get(paymentID uuid.UUID) (*Payment, error) {
	var (
		p          Payment
		id, taskID string
		createdAt  string
		releasedAt sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT id, task_id, amount_cents, status, created_at, released_at
		FROM payments WHERE id = ?`, paymentID.String(),
	).Scan(&id, &taskID, &p.AmountCents, &p.Status, &createdAt, &releasedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "payment %s", paymentID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load payment %s", paymentID)
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(err, "malformed payment id %q", id)
	}
	if p.TaskID, err = uuid.Parse(taskID); err != nil {
		return nil, errors.Wrapf(err, "malformed task id %q", taskID)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrap(err, "malformed created_at")
	}
	if releasedAt.Valid {
		t, err := time.Parse(time.RFC3339, releasedAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "malformed released_at")
		}
		p.ReleasedAt = &t
	}
	return &p, nil
}

func (s *Service) exists(paymentID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM payments WHERE id = ?)`, paymentID.String(),
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check payment %s", paymentID)
	}
	return exists, nil
}
