package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/user"
)

const (
	userColumns = `id, name, email, password_hash, role, phone_number, created_at, updated_at`

	insertUserSQL = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	userEmailTakenSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`

	updateUserSQL = `UPDATE users SET name = $2, phone_number = $3, updated_at = $4 WHERE id = $1`
	updateRoleSQL = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`

	getAddressesSQL = `SELECT id, street, house_number, postal_code, is_default
		FROM addresses WHERE user_id = $1 ORDER BY position`
	deleteAddressesSQL = `DELETE FROM addresses WHERE user_id = $1`
	insertAddressSQL   = `INSERT INTO addresses (id, user_id, position, street, house_number, postal_code, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL. The
// address book is stored in its own table and loaded with the user.
type UserRepository struct {
	conn
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{conn{pool: pool}}
}

// Create inserts u and its addresses. A duplicate email yields
// user.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	b := &pgx.Batch{}
	b.Queue(insertUserSQL, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.PhoneNumber, u.CreatedAt, u.UpdatedAt)
	queueAddresses(b, u)
	if err := r.exec(ctx, b); err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return errors.Wrapf(err, "create user %q", u.ID)
	}
	return nil
}

// FindByID returns a user with addresses.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	return r.find(ctx, getUserByIDSQL, id)
}

// FindByEmail returns a user with addresses.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.find(ctx, getUserByEmailSQL, email)
}

// ExistsByEmail reports whether email is registered.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.q(ctx).QueryRow(ctx, userEmailTakenSQL, email).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check email")
	}
	return exists, nil
}

// Update saves the profile fields and replaces the address book.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	b := &pgx.Batch{}
	b.Queue(updateUserSQL, u.ID, u.Name, u.PhoneNumber, u.UpdatedAt)
	b.Queue(deleteAddressesSQL, u.ID)
	queueAddresses(b, u)

	br := r.q(ctx).SendBatch(ctx, b)
	tag, err := br.Exec()
	if err != nil {
		_ = br.Close()
		return errors.Wrapf(err, "update user %q", u.ID)
	}
	if tag.RowsAffected() == 0 {
		_ = br.Close()
		return user.ErrNotFound
	}
	for range b.Len() - 1 {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "update addresses of %q", u.ID)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrapf(err, "update user %q", u.ID)
	}
	return nil
}

// UpdateRole changes the user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role auth.Role) error {
	tag, err := r.q(ctx).Exec(ctx, updateRoleSQL, id, string(role))
	if err != nil {
		return errors.Wrapf(err, "update role of %q", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) find(ctx context.Context, sql, arg string) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := r.q(ctx).QueryRow(ctx, sql, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrap(err, "find user")
	}
	u.Role = auth.Role(role)

	rows, err := r.q(ctx).Query(ctx, getAddressesSQL, u.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "get addresses of %q", u.ID)
	}
	u.Addresses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Address, error) {
		var a user.Address
		err := row.Scan(&a.ID, &a.Street, &a.HouseNumber, &a.PostalCode, &a.IsDefault)
		return a, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get addresses of %q", u.ID)
	}
	return &u, nil
}

func (r *UserRepository) exec(ctx context.Context, b *pgx.Batch) error {
	br := r.q(ctx).SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func queueAddresses(b *pgx.Batch, u *user.User) {
	for i, a := range u.Addresses {
		b.Queue(insertAddressSQL, a.ID, u.ID, i, a.Street, a.HouseNumber, a.PostalCode, a.IsDefault)
	}
}
