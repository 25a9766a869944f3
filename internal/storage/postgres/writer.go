package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/yuanning6/etl-off-sqs/internal/domain"
	"github.com/yuanning6/etl-off-sqs/internal/errs"
)

const insertLogin = `
INSERT INTO user_logins (event_key, user_id, device_type, masked_ip, masked_device_id, locale, app_version, create_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_key) DO NOTHING`

type Writer struct {
	db *DB
}

func NewWriter(db *DB) *Writer { return &Writer{db: db} }

// Persist writes rec in its own transaction. A row that already exists for
// rec.EventKey is not an error; inserted reports whether this call added it.
// Every failure wraps errs.ErrWrite.
func (w *Writer) Persist(ctx context.Context, rec domain.SanitizedLoginRecord) (inserted bool, err error) {
	tx, err := w.db.Pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrapf(errs.ErrWrite, "begin: %v", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, insertLogin,
		rec.EventKey,
		rec.UserID,
		rec.DeviceType,
		rec.MaskedIP,
		rec.MaskedDeviceID,
		rec.Locale,
		int64(rec.AppVersion),
		rec.CreatedAt,
	)
	if err != nil {
		return false, errors.Wrapf(errs.ErrWrite, "insert: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrapf(errs.ErrWrite, "commit: %v", err)
	}
	return ct.RowsAffected() == 1, nil
}
