package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/photolog/photolog-auth"
)

// currentSlot is the key of the single signed in credential.
const currentSlot = "current"

// CredentialModel is the Bun model for the persisted credential.
type CredentialModel struct {
	bun.BaseModel `bun:"table:credentials"`

	Slot         string    `bun:"slot,pk"`
	UserID       string    `bun:"user_id,notnull"`
	IDToken      string    `bun:"id_token,notnull"`
	RefreshToken string    `bun:"refresh_token"`
	ExpiresAt    time.Time `bun:"expires_at,nullzero"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

// CredentialRepository implements auth.CredentialStore using Bun.
type CredentialRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ auth.CredentialStore = (*CredentialRepository)(nil)

// NewCredentialRepository creates a new repository.
func NewCredentialRepository(db *bun.DB) *CredentialRepository {
	return &CredentialRepository{db: db, now: time.Now}
}

// OpenSQLite opens dsn with the sqlite shim driver, i.e. a file path or
// "file::memory:?cache=shared".
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the credentials table when missing.
func (r *CredentialRepository) Migrate(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// LoadCredential implements auth.CredentialStore.
func (r *CredentialRepository) LoadCredential(ctx context.Context) (*auth.Credential, error) {
	var model CredentialModel
	err := r.db.NewSelect().
		Model(&model).
		Where("slot = ?", currentSlot).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return toCredential(&model), nil
}

// SaveCredential implements auth.CredentialStore.
func (r *CredentialRepository) SaveCredential(ctx context.Context, cred *auth.Credential) error {
	if cred == nil {
		return r.DeleteCredential(ctx)
	}

	model := fromCredential(cred)
	model.Slot = currentSlot
	model.UpdatedAt = r.now()

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (slot) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("id_token = EXCLUDED.id_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// DeleteCredential implements auth.CredentialStore.
func (r *CredentialRepository) DeleteCredential(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*CredentialModel)(nil)).
		Where("slot = ?", currentSlot).
		Exec(ctx)
	return err
}

func toCredential(m *CredentialModel) *auth.Credential {
	return &auth.Credential{
		UserID:       m.UserID,
		IDToken:      m.IDToken,
		RefreshToken: m.RefreshToken,
		ExpiresAt:    m.ExpiresAt,
	}
}

func fromCredential(c *auth.Credential) *CredentialModel {
	return &CredentialModel{
		UserID:       c.UserID,
		IDToken:      c.IDToken,
		RefreshToken: c.RefreshToken,
		ExpiresAt:    c.ExpiresAt,
	}
}
