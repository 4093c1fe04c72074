package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

const uniqueViolation = "23505"

var profileOrderingFields = map[string]string{
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `
		INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at, last_login)
		VALUES (:id, :email, :password_hash, :name, :role, :is_active, :created_at, :updated_at, :last_login)`

	if _, err := repo.db.NamedExecContext(ctx, q, usr); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var usr user.User
	q := `SELECT id, email, password_hash, name, role, is_active, created_at, updated_at, last_login FROM users WHERE ` + where
	if err := repo.db.GetContext(ctx, &usr, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "email = $1", email)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	const q = `
		UPDATE users
		SET email = :email, password_hash = :password_hash, name = :name, role = :role,
		    is_active = :is_active, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`

	res, err := repo.db.NamedExecContext(ctx, q, usr)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	var prof user.Profile
	const q = `SELECT id, email, name, role, created_at, updated_at FROM profiles WHERE id = $1`
	if err := repo.db.GetContext(ctx, &prof, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.Profile{}, user.ErrProfileNotFound
		}
		return user.Profile{}, errors.Wrap(err, "selecting profile")
	}
	return prof, nil
}

func (repo *userRepository) InsertProfile(ctx context.Context, prof user.Profile) (user.Profile, error) {
	const q = `
		INSERT INTO profiles (id, email, name, role, created_at, updated_at)
		VALUES (:id, :email, :name, :role, :created_at, :updated_at)`

	if _, err := repo.db.NamedExecContext(ctx, q, prof); err != nil {
		if isUniqueViolation(err) {
			return user.Profile{}, user.ErrProfileExists
		}
		return user.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return prof, nil
}

func (repo *userRepository) QueryProfiles(ctx context.Context, filter user.ProfileFilter, ordering []core.DBOrdering) ([]user.Profile, error) {
	var (
		conds []string
		args  []interface{}
	)
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		args = append(args, pq.Array(roles))
		conds = append(conds, "role = ANY($"+strconv.Itoa(len(args))+")")
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(name ILIKE $"+n+" OR email ILIKE $"+n+")")
	}

	q := `SELECT id, email, name, role, created_at, updated_at FROM profiles`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += core.OrderByClause(ordering, profileOrderingFields, "created_at DESC")

	profs := make([]user.Profile, 0)
	if err := repo.db.SelectContext(ctx, &profs, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting profiles")
	}
	return profs, nil
}

func (repo *userRepository) SavePushToken(ctx context.Context, tok user.PushToken) (user.PushToken, error) {
	const q = `
		INSERT INTO push_tokens (token, user_id, created_at) VALUES (:token, :user_id, :created_at)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, created_at = EXCLUDED.created_at`

	if _, err := repo.db.NamedExecContext(ctx, q, tok); err != nil {
		return user.PushToken{}, errors.Wrap(err, "saving push token")
	}
	return tok, nil
}

func (repo *userRepository) GetPushToken(ctx context.Context, token string) (user.PushToken, error) {
	var tok user.PushToken
	const q = `SELECT token, user_id, created_at FROM push_tokens WHERE token = $1`
	if err := repo.db.GetContext(ctx, &tok, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.PushToken{}, user.ErrPushTokenNotFound
		}
		return user.PushToken{}, errors.Wrap(err, "selecting push token")
	}
	return tok, nil
}
