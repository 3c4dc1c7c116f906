package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, token)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id
	`, user.Name, user.Email, user.PasswordHash, user.Token).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user  domain.User
		token sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, token
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	user.Token = token.String
	return user, nil
}

func (r *userRepository) SetToken(ctx context.Context, userID int64, token string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE users SET token = NULLIF($1, '') WHERE id = $2`, token, userID)
	if err != nil {
		return fmt.Errorf("update user token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) GetUserIDByToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE token = $1`, token).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUnauthorized
		}
		return 0, fmt.Errorf("select user by token: %w", err)
	}
	return id, nil
}

const addressColumns = `id, user_id, zipcode, street, number, city, state, country, complement`

func (r *userRepository) CreateAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_addresses (user_id, zipcode, street, number, city, state, country, complement)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, a.UserID, a.Zipcode, a.Street, a.Number, a.City, a.State, a.Country, a.Complement).Scan(&a.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Address{}, domain.ErrUserNotFound
		}
		return domain.Address{}, fmt.Errorf("insert address: %w", err)
	}
	return a, nil
}

func (r *userRepository) ListAddresses(ctx context.Context, userID int64) ([]domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+addressColumns+` FROM user_addresses WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Address, 0)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return result, nil
}

func (r *userRepository) GetAddress(ctx context.Context, userID, addressID int64) (domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM user_addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	a, err := scanAddress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Address{}, domain.ErrAddressNotFound
		}
		return domain.Address{}, fmt.Errorf("select address: %w", err)
	}
	return a, nil
}

func (r *userRepository) DeleteAddress(ctx context.Context, userID, addressID int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM user_addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("address rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func scanAddress(row rowScanner) (domain.Address, error) {
	var a domain.Address
	err := row.Scan(&a.ID, &a.UserID, &a.Zipcode, &a.Street, &a.Number, &a.City, &a.State, &a.Country, &a.Complement)
	return a, err
}

var _ domain.UserRepository = (*userRepository)(nil)
