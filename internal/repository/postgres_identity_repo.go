package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/slotbook/internal/model"
)

// PostgresIdentityRepo はIdPアカウントとユーザーの紐付けを保持する。
// 作成はPostgresUserRepo.CreateWithIdentityがユーザーと同じトランザクションで行う。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const selectIdentityByProvider = `SELECT id, user_id, provider, provider_user_id, created_at
	FROM identities WHERE provider = $1 AND provider_user_id = $2`

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var id model.Identity
	if err := row.Scan(&id.ID, &id.UserID, &id.Provider, &id.ProviderUserID, &id.CreatedAt); err != nil {
		return nil, err
	}
	return &id, nil
}

// FindByProviderAndProviderUserID はIdPのアカウントIDから紐付けを引く。未登録ならnil。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, selectIdentityByProvider, provider, providerUserID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find identity for %s: %w", provider, err)
	}
	return identity, nil
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
