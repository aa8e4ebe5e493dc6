package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	auth "github.com/photolog/photolog-auth"
)

// ResendCooldownModel stores when an account may request another
// verification code.
type ResendCooldownModel struct {
	bun.BaseModel `bun:"table:resend_cooldowns"`

	UserID      string    `bun:"user_id,pk"`
	AvailableAt time.Time `bun:"available_at,notnull"`
}

// ResendCooldownRepository implements auth.ResendCooldownStore for one account.
type ResendCooldownRepository struct {
	db     *bun.DB
	userID string
}

var _ auth.ResendCooldownStore = (*ResendCooldownRepository)(nil)

func NewResendCooldownRepository(db *bun.DB, userID string) *ResendCooldownRepository {
	return &ResendCooldownRepository{db: db, userID: userID}
}

// Migrate creates the resend_cooldowns table when missing.
func (r *ResendCooldownRepository) Migrate(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*ResendCooldownModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// LoadResendAvailableAt implements auth.ResendCooldownStore.
func (r *ResendCooldownRepository) LoadResendAvailableAt(ctx context.Context) (time.Time, error) {
	var model ResendCooldownModel
	err := r.db.NewSelect().
		Model(&model).
		Where("user_id = ?", r.userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return model.AvailableAt, nil
}

// SaveResendAvailableAt implements auth.ResendCooldownStore.
func (r *ResendCooldownRepository) SaveResendAvailableAt(ctx context.Context, at time.Time) error {
	_, err := r.db.NewInsert().
		Model(&ResendCooldownModel{UserID: r.userID, AvailableAt: at.UTC()}).
		On("CONFLICT (user_id) DO UPDATE").
		Set("available_at = EXCLUDED.available_at").
		Exec(ctx)
	return err
}
