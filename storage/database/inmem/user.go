package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	tbl := repo.db.user
	tbl.Lock()
	defer tbl.Unlock()

	for _, u := range tbl.table {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	tbl.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	tbl := repo.db.user
	tbl.RLock()
	defer tbl.RUnlock()

	if usr, ok := tbl.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	tbl := repo.db.user
	tbl.RLock()
	defer tbl.RUnlock()

	for _, usr := range tbl.table {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	tbl := repo.db.user
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	tbl.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetProfile(_ context.Context, id string) (user.Profile, error) {
	tbl := repo.db.profile
	tbl.RLock()
	defer tbl.RUnlock()

	if prof, ok := tbl.table[id]; ok {
		return *prof, nil
	}
	return user.Profile{}, user.ErrProfileNotFound
}

func (repo *userRepository) InsertProfile(_ context.Context, prof user.Profile) (user.Profile, error) {
	tbl := repo.db.profile
	tbl.Lock()
	defer tbl.Unlock()

	if _, ok := tbl.table[prof.ID]; ok {
		return user.Profile{}, user.ErrProfileExists
	}
	tbl.table[prof.ID] = &prof
	return prof, nil
}

func (repo *userRepository) QueryProfiles(_ context.Context, filter user.ProfileFilter, ordering []core.DBOrdering) ([]user.Profile, error) {
	tbl := repo.db.profile
	tbl.RLock()
	defer tbl.RUnlock()

	search := strings.ToLower(filter.Search)
	profs := make([]user.Profile, 0, len(tbl.table))
	for _, prof := range tbl.table {
		if len(filter.Roles) > 0 && !hasRole(*prof, filter.Roles) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(prof.Name.String), search) &&
			!strings.Contains(strings.ToLower(prof.Email), search) {
			continue
		}
		profs = append(profs, *prof)
	}
	sortProfiles(profs, ordering)
	return profs, nil
}

func (repo *userRepository) SavePushToken(_ context.Context, tok user.PushToken) (user.PushToken, error) {
	tbl := repo.db.pushToken
	tbl.Lock()
	defer tbl.Unlock()

	tbl.table[tok.Token] = &tok
	return tok, nil
}

func (repo *userRepository) GetPushToken(_ context.Context, token string) (user.PushToken, error) {
	tbl := repo.db.pushToken
	tbl.RLock()
	defer tbl.RUnlock()

	if tok, ok := tbl.table[token]; ok {
		return *tok, nil
	}
	return user.PushToken{}, user.ErrPushTokenNotFound
}

func hasRole(prof user.Profile, roles []user.Role) bool {
	for _, r := range roles {
		if prof.Role.Valid && prof.Role.String == string(r) {
			return true
		}
	}
	return false
}

// sortProfiles orders by the first known field only, newest first by default.
func sortProfiles(profs []user.Profile, ordering []core.DBOrdering) {
	less := func(i, j int) bool { return profs[i].CreatedAt.After(profs[j].CreatedAt) }
	for _, ord := range ordering {
		var cmp func(i, j int) int
		switch ord.Field {
		case "name":
			cmp = func(i, j int) int { return strings.Compare(profs[i].Name.String, profs[j].Name.String) }
		case "email":
			cmp = func(i, j int) int { return strings.Compare(profs[i].Email, profs[j].Email) }
		case "created_at":
			cmp = func(i, j int) int { return profs[i].CreatedAt.Compare(profs[j].CreatedAt) }
		default:
			continue
		}
		if ord.Ascending {
			less = func(i, j int) bool { return cmp(i, j) < 0 }
		} else {
			less = func(i, j int) bool { return cmp(i, j) > 0 }
		}
		break
	}
	sort.SliceStable(profs, less)
}
