package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// DirectoryStore is the local system of record for users and group memberships.
type DirectoryStore struct {
	pool *pgxpool.Pool
	cfg  StoreConfig
}

var _ directory.Directory = (*DirectoryStore)(nil)

// NewDirectoryStore creates a PostgreSQL-backed directory.
func NewDirectoryStore(pool *pgxpool.Pool, cfg StoreConfig) *DirectoryStore {
	cfg.ApplyDefaults()
	return &DirectoryStore{pool: pool, cfg: cfg}
}

// GetUser loads a single user, mainly for inspection and tests.
func (d *DirectoryStore) GetUser(ctx context.Context, orgID uuid.UUID, email string) (directory.User, error) {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	var u directory.User
	err := d.pool.QueryRow(ctx, `
		SELECT email, first_name, last_name, org_unit_path, suspended
		FROM directory_users WHERE org_id = $1 AND email = $2
	`, orgID, directory.NormaliseEmail(email)).Scan(&u.Email, &u.FirstName, &u.LastName, &u.OrgUnitPath, &u.Suspended)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.User{}, directory.ErrUserNotFound
	}
	if err != nil {
		return directory.User{}, mapPostgresError(err)
	}

	return u, nil
}

func (d *DirectoryStore) UpdateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	email := directory.NormaliseEmail(rec.Email)

	var u directory.User
	err = tx.QueryRow(ctx, `
		SELECT email, first_name, last_name, org_unit_path, suspended
		FROM directory_users WHERE org_id = $1 AND email = $2 FOR UPDATE
	`, orgID, email).Scan(&u.Email, &u.FirstName, &u.LastName, &u.OrgUnitPath, &u.Suspended)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.ErrUserNotFound
	}
	if err != nil {
		return mapPostgresError(err)
	}

	u.Apply(rec)

	_, err = tx.Exec(ctx, `
		UPDATE directory_users
		SET first_name = $3, last_name = $4, org_unit_path = $5, suspended = $6, updated_at = now()
		WHERE org_id = $1 AND email = $2
	`, orgID, email, u.FirstName, u.LastName, u.OrgUnitPath, u.Suspended)
	if err != nil {
		return mapPostgresError(err)
	}

	return mapPostgresError(tx.Commit(ctx))
}

func (d *DirectoryStore) CreateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	u := directory.NewUser(rec)
	_, err := d.pool.Exec(ctx, `
		INSERT INTO directory_users (org_id, email, first_name, last_name, org_unit_path, suspended)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, orgID, u.Email, u.FirstName, u.LastName, u.OrgUnitPath, u.Suspended)
	return mapPostgresError(err)
}

func (d *DirectoryStore) SuspendUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	return d.updateExisting(ctx, `
		UPDATE directory_users SET suspended = TRUE, updated_at = now()
		WHERE org_id = $1 AND email = $2
	`, orgID, directory.NormaliseEmail(rec.Email))
}

// DeleteUser succeeds when the user is already absent. Memberships go with the user.
func (d *DirectoryStore) DeleteUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	_, err := d.pool.Exec(ctx, `DELETE FROM directory_users WHERE org_id = $1 AND email = $2`,
		orgID, directory.NormaliseEmail(rec.Email))
	return mapPostgresError(err)
}

// AddGroupMember keeps the existing role when the user is already a member.
func (d *DirectoryStore) AddGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	_, err := d.pool.Exec(ctx, `
		INSERT INTO directory_group_members (org_id, group_email, member_email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, group_email, member_email) DO NOTHING
	`, orgID, directory.NormaliseEmail(rec.GroupEmail), directory.NormaliseEmail(rec.Email), directory.MemberRole(rec))
	return mapPostgresError(err)
}

func (d *DirectoryStore) RemoveGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	_, err := d.pool.Exec(ctx, `
		DELETE FROM directory_group_members
		WHERE org_id = $1 AND group_email = $2 AND member_email = $3
	`, orgID, directory.NormaliseEmail(rec.GroupEmail), directory.NormaliseEmail(rec.Email))
	return mapPostgresError(err)
}

func (d *DirectoryStore) MoveUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	return d.updateExisting(ctx, `
		UPDATE directory_users SET org_unit_path = $3, updated_at = now()
		WHERE org_id = $1 AND email = $2
	`, orgID, directory.NormaliseEmail(rec.Email), rec.OrgUnitPath)
}

// updateExisting runs a single-row update and reports ErrUserNotFound when no row matched.
func (d *DirectoryStore) updateExisting(ctx context.Context, sql string, args ...any) error {
	ctx, cancel := d.cfg.queryContext(ctx)
	defer cancel()

	tag, err := d.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapPostgresError(err)
	}

	if tag.RowsAffected() == 0 {
		return directory.ErrUserNotFound
	}

	return nil
}
