package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/pkg/database"
	apperrors "github.com/utafrali/accounts/pkg/errors"
)

const userColumns = `id, username, email, first_name, last_name, country_name, phone_number,
		date_of_birth, role, password_hash, refresh_token_hash, last_login_at, created_at, updated_at`

// UserRepository implements repository.UserRepository on PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository returns a repository over db.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u. A username or email collision is reported as AlreadyExists.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	const query = `
		INSERT INTO users (id, username, email, first_name, last_name, country_name, phone_number,
			date_of_birth, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.FirstName,
		u.LastName,
		u.CountryName,
		u.PhoneNumber,
		u.DateOfBirth,
		string(u.Role),
		u.PasswordHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if dup := uniqueViolation(err, u); dup != nil {
			return dup
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return getOne(ctx, r.db, "GetUserByID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return getOne(ctx, r.db, "GetUserByUsername",
		`SELECT `+userColumns+` FROM users WHERE username = $1`, domain.NormalizeUsername(username))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getOne(ctx, r.db, "GetUserByEmail",
		`SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
}

// FindByUsernameOrEmail matches either field; an empty argument matches nothing.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	return getOne(ctx, r.db, "FindUserByUsernameOrEmail",
		`SELECT `+userColumns+` FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY created_at
		LIMIT 1`,
		domain.NormalizeUsername(username), domain.NormalizeEmail(email))
}

// ExistsByUsernameOrEmail reports whether either value is taken.
func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (exists bool, err error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`

	ctx, end := database.TraceQuery(ctx, "UserExists", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query,
		domain.NormalizeUsername(username), domain.NormalizeEmail(email),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// List returns users ordered oldest first, plus the total row count.
func (r *UserRepository) List(ctx context.Context, offset, limit int) (users []domain.User, total int, err error) {
	const countQuery = `SELECT COUNT(*) FROM users`
	const listQuery = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`

	ctx, end := database.TraceQuery(ctx, "ListUsers", listQuery)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx, listQuery, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users = make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, total, nil
}

// Update writes profile fields and role and bumps updated_at.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	const query = `
		UPDATE users
		SET username = $1, email = $2, first_name = $3, last_name = $4, country_name = $5,
		    phone_number = $6, date_of_birth = $7, role = $8, updated_at = $9
		WHERE id = $10`

	ctx, end := database.TraceQuery(ctx, "UpdateUser", query)
	defer func() { end(err) }()

	u.UpdatedAt = time.Now().UTC()
	ct, err := r.db.Exec(ctx, query,
		u.Username,
		u.Email,
		u.FirstName,
		u.LastName,
		u.CountryName,
		u.PhoneNumber,
		u.DateOfBirth,
		string(u.Role),
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if dup := uniqueViolation(err, u); dup != nil {
			return dup
		}
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// UpdatePassword stores a new hash and clears the refresh slot in one statement.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	const query = `
		UPDATE users SET password_hash = $1, refresh_token_hash = NULL, updated_at = $2
		WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "UpdateUserPassword", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// Delete removes the user row.
func (r *UserRepository) Delete(ctx context.Context, id string) (err error) {
	const query = `DELETE FROM users WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteUser", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// TouchLastLogin records a successful sign-in.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) (err error) {
	const query = `UPDATE users SET last_login_at = $1 WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "TouchLastLogin", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func getOne(ctx context.Context, db database.DBTX, op, query string, args ...any) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	u, err = scanUser(db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.CountryName,
		&u.PhoneNumber,
		&u.DateOfBirth,
		&role,
		&u.PasswordHash,
		&u.RefreshTokenHash,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// uniqueViolation maps SQLSTATE 23505 to an AlreadyExists naming the column
// whose constraint fired. It returns nil for any other error.
func uniqueViolation(err error, u *domain.User) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}

	if strings.Contains(pgErr.ConstraintName, "email") {
		return apperrors.AlreadyExists("user", "email", u.Email)
	}
	return apperrors.AlreadyExists("user", "username", u.Username)
}
