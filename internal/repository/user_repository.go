package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amirk1998/serendib-banking/internal/clock"
	"github.com/amirk1998/serendib-banking/internal/database"
	"github.com/amirk1998/serendib-banking/internal/models"
	"github.com/amirk1998/serendib-banking/internal/security"
	"github.com/amirk1998/serendib-banking/pkg/errors"
)

const (
	mobileColumn = "mobile_encrypted"
	emailColumn  = "email_encrypted"
)

const userColumns = `id, username, password, display_name, account_number, nic, status,
               mobile_encrypted, email_encrypted, preferred_channel, login_attempts,
               locked_until, created_at, updated_at`

// UserRepository is the directory on the encrypted SQLite database.
// Contact details are sealed with the field encryptor before they are written.
type UserRepository struct {
	db    *sql.DB
	tm    *database.TransactionManager
	enc   *security.FieldEncryptor
	clock clock.Clock
}

// NewUserRepository stamps records with clk; nil means the wall clock.
func NewUserRepository(db *sql.DB, enc *security.FieldEncryptor, clk clock.Clock) *UserRepository {
	if clk == nil {
		clk = clock.System{}
	}
	return &UserRepository{
		db:    db,
		tm:    database.NewTransactionManager(db),
		enc:   enc,
		clock: clk,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (*models.User, error) {
	var (
		user          models.User
		mobile, email string
		preferred     string
		lockedUntil   sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.DisplayName,
		&user.AccountNumber,
		&user.NIC,
		&user.Status,
		&mobile,
		&email,
		&preferred,
		&user.LoginAttempts,
		&lockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.Mobile, err = r.enc.Open(mobileColumn, mobile); err != nil {
		return nil, err
	}
	if user.Email, err = r.enc.Open(emailColumn, email); err != nil {
		return nil, err
	}

	// Rows written before channels were validated may hold anything here.
	if c, err := models.ParseChannel(preferred); err == nil {
		user.PreferredChannel = c
	}

	if lockedUntil.Valid {
		until := lockedUntil.Time
		user.LockedUntil = &until
	}

	return &user, nil
}

func (r *UserRepository) findBy(ctx context.Context, column, value string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = ?`, userColumns, column)
	return r.scanUser(r.db.QueryRowContext(ctx, query, value))
}

// FindByUsername relies on the column's NOCASE collation for case-insensitive lookup
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findBy(ctx, "username", username)
}

func (r *UserRepository) FindByNIC(ctx context.Context, nic string) (*models.User, error) {
	return r.findBy(ctx, "nic", nic)
}

func (r *UserRepository) FindByAccount(ctx context.Context, accountNumber string) (*models.User, error) {
	return r.findBy(ctx, "account_number", accountNumber)
}

// Add inserts a new user and assigns its ID
func (r *UserRepository) Add(ctx context.Context, user *models.User) error {
	mobile, email, err := r.sealContacts(user)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	return r.tm.Execute(ctx, func(tx *sql.Tx) error {
		var usernameTaken, identityTaken int
		err := tx.QueryRowContext(ctx, `
        SELECT
            COALESCE(SUM(username = ?), 0),
            COALESCE(SUM(nic = ? OR account_number = ?), 0)
        FROM users
        WHERE username = ? OR nic = ? OR account_number = ?
    `, user.Username, user.NIC, user.AccountNumber, user.Username, user.NIC, user.AccountNumber,
		).Scan(&usernameTaken, &identityTaken)
		if err != nil {
			return fmt.Errorf("failed to check existing users: %w", err)
		}
		if usernameTaken > 0 {
			return errors.ErrUsernameTaken
		}
		if identityTaken > 0 {
			return errors.ErrUserAlreadyExists
		}

		result, err := tx.ExecContext(ctx, `
        INSERT INTO users (username, password, display_name, account_number, nic, status,
                           mobile_encrypted, email_encrypted, preferred_channel, login_attempts,
                           locked_until, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
			user.Username,
			user.Password,
			user.DisplayName,
			user.AccountNumber,
			user.NIC,
			user.Status,
			mobile,
			email,
			string(user.PreferredChannel),
			user.LoginAttempts,
			nullTime(user.LockedUntil),
			now,
			now,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return errors.ErrUserAlreadyExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get user ID: %w", err)
		}

		user.ID = int(id)
		user.CreatedAt = now
		user.UpdatedAt = now
		return nil
	})
}

// Update runs fn against the row inside a write transaction. Only the
// mutable columns are written back.
func (r *UserRepository) Update(ctx context.Context, username string, fn func(*models.User) error) (*models.User, error) {
	var updated *models.User

	err := r.tm.Execute(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM users WHERE username = ?`, userColumns)
		user, err := r.scanUser(tx.QueryRowContext(ctx, query, username))
		if err != nil {
			return err
		}

		if err := fn(user); err != nil {
			return err
		}

		mobile, email, err := r.sealContacts(user)
		if err != nil {
			return err
		}

		user.UpdatedAt = r.clock.Now()
		_, err = tx.ExecContext(ctx, `
        UPDATE users
        SET password = ?, display_name = ?, status = ?, mobile_encrypted = ?,
            email_encrypted = ?, preferred_channel = ?, login_attempts = ?,
            locked_until = ?, updated_at = ?
        WHERE id = ?
    `,
			user.Password,
			user.DisplayName,
			user.Status,
			mobile,
			email,
			string(user.PreferredChannel),
			user.LoginAttempts,
			nullTime(user.LockedUntil),
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *UserRepository) sealContacts(user *models.User) (mobile, email string, err error) {
	if mobile, err = r.enc.Seal(mobileColumn, user.Mobile); err != nil {
		return "", "", fmt.Errorf("failed to seal mobile: %w", err)
	}
	if email, err = r.enc.Seal(emailColumn, user.Email); err != nil {
		return "", "", fmt.Errorf("failed to seal email: %w", err)
	}
	return mobile, email, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
