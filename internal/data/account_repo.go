package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/target/gatekeeper/internal/data/pgxutil"
	"github.com/target/gatekeeper/internal/domain/model"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

var _ ports.AccountStore = (*AccountRepo)(nil)

const accountColumns = `username, credentials, locked, credentials_expire_at, failed_attempts, created_at, updated_at`

// AccountRepo persists accounts, role grants and permissions in Postgres.
type AccountRepo struct {
	DB *sql.DB
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

// mapAccountErr maps driver errors for operations on username. A missing parent
// row (foreign key) is reported as an unknown account.
func mapAccountErr(err error, username string) error {
	if err == nil {
		return nil
	}
	mapped := apperrors.MapDBError(err)
	if apperrors.IsNotFound(mapped) || apperrors.IsUnknownAccount(mapped) {
		return apperrors.UnknownAccount(username)
	}
	return mapped
}

func (r *AccountRepo) GetAccount(ctx context.Context, username string) (model.Account, error) {
	var out model.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Account])
		return err
	})
	if err != nil {
		return model.Account{}, mapAccountErr(err, username)
	}
	return out, nil
}

func (r *AccountRepo) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (model.Account, error) {
	if err := req.Validate(); err != nil {
		return model.Account{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	var out model.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO accounts (username, credentials, locked, credentials_expire_at)
			VALUES ($1, $2, $3, $4)
			RETURNING `+accountColumns,
			req.Username, req.Credentials, req.Locked, req.CredentialsExpireAt)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Account])
		return err
	})
	if err != nil {
		return model.Account{}, apperrors.MapDBError(err)
	}
	return out, nil
}

// execAccount runs a single-account UPDATE and reports unknown_account when no row matched.
func (r *AccountRepo) execAccount(ctx context.Context, username, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return mapAccountErr(err, username)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.UnknownAccount(username)
	}
	return nil
}

// SetLocked locks or unlocks an account. Unlocking also clears the failed-attempt counter.
func (r *AccountRepo) SetLocked(ctx context.Context, username string, locked bool) error {
	return r.execAccount(ctx, username, `
		UPDATE accounts
		SET locked = $2,
		    failed_attempts = CASE WHEN $2 THEN failed_attempts ELSE 0 END
		WHERE username = $1`, username, locked)
}

func (r *AccountRepo) RecordFailedAttempt(ctx context.Context, username string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE accounts SET failed_attempts = failed_attempts + 1
		WHERE username = $1
		RETURNING failed_attempts`, username).Scan(&n)
	if err != nil {
		return 0, mapAccountErr(err, username)
	}
	return n, nil
}

func (r *AccountRepo) ResetFailedAttempts(ctx context.Context, username string) error {
	return r.execAccount(ctx, username,
		`UPDATE accounts SET failed_attempts = 0 WHERE username = $1`, username)
}

func (r *AccountRepo) GrantRole(ctx context.Context, username, role string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO account_roles (username, role) VALUES ($1, $2)
		ON CONFLICT (username, role) DO NOTHING`, username, role)
	return mapAccountErr(err, username)
}

// RevokeRole removes a role grant. Revoking a role that was never granted is not an error.
func (r *AccountRepo) RevokeRole(ctx context.Context, username, role string) error {
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := requireAccount(ctx, tx, username); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM account_roles WHERE username = $1 AND role = $2`, username, role); err != nil {
				return mapAccountErr(err, username)
			}
			return nil
		},
	})
}

func (r *AccountRepo) GrantPermission(ctx context.Context, username, perm string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO account_permissions (username, permission) VALUES ($1, $2)
		ON CONFLICT (username, permission) DO NOTHING`, username, perm)
	return mapAccountErr(err, username)
}

func (r *AccountRepo) GrantRolePermission(ctx context.Context, role, perm string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO role_permissions (role, permission) VALUES ($1, $2)
		ON CONFLICT (role, permission) DO NOTHING`, role, perm)
	return apperrors.MapDBError(err)
}

// Grants reads roles and permissions in one read-only snapshot.
func (r *AccountRepo) Grants(ctx context.Context, username string) ([]string, []string, error) {
	var roles, perms []string
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		Fn: func(tx pgx.Tx) error {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperrors.UnknownAccount(username)
			}

			rows, err := tx.Query(ctx,
				`SELECT role FROM account_roles WHERE username = $1 ORDER BY role`, username)
			if err != nil {
				return err
			}
			if roles, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
				return err
			}

			rows, err = tx.Query(ctx, `
				SELECT permission FROM account_permissions WHERE username = $1
				UNION
				SELECT rp.permission FROM role_permissions rp
				JOIN account_roles ar ON ar.role = rp.role
				WHERE ar.username = $1
				ORDER BY 1`, username)
			if err != nil {
				return err
			}
			perms, err = pgx.CollectRows(rows, pgx.RowTo[string])
			return err
		},
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, nil, err
		}
		return nil, nil, mapAccountErr(err, username)
	}
	return roles, perms, nil
}

func requireAccount(ctx context.Context, tx *sql.Tx, username string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists); err != nil {
		return mapAccountErr(err, username)
	}
	if !exists {
		return apperrors.UnknownAccount(username)
	}
	return nil
}
