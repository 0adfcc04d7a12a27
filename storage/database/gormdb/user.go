package gormdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Username     string `gorm:"index"`
	Email        string `gorm:"index"`
	IsActive     bool
	Roles        datatypes.JSONSlice[string]
	TeamID       string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

func (userRow) TableName() string { return "users" }

// user columns the API may order by
var userOrderingColumns = map[string]string{
	"name":      "name",
	"username":  "username",
	"email":     "email",
	"isActive":  "is_active",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"lastLogin": "last_login",
}

type userRepository struct {
	db *gorm.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *gorm.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) toRow(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        emptyIfNil(usr.Roles),
		TeamID:       usr.TeamID,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
	if !usr.LastLogin.IsZero() {
		lastLogin := usr.LastLogin.UTC()
		row.LastLogin = &lastLogin
	}
	return row
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		IsActive:     row.IsActive,
		Roles:        emptyIfNil([]string(row.Roles)),
		TeamID:       row.TeamID,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin != nil {
		usr.LastLogin = row.LastLogin.UTC()
	}
	return usr
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}
	taken := func(column, value string) (bool, error) {
		if value == "" {
			return false, nil
		}
		q := repo.db.WithContext(ctx).Model(&userRow{}).Where(column+" = ?", value)
		if len(excluded) > 0 {
			q = q.Where("id NOT IN ?", excluded)
		}
		var cnt int64
		err := q.Count(&cnt).Error
		return cnt > 0, err
	}

	exists, err := taken("username", username)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if exists {
		return user.ErrUsernameExists
	}
	if exists, err = taken("email", email); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	row := repo.toRow(usr)
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	q := repo.db.WithContext(ctx).Model(&userRow{})

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			q = likeAny(q, filter.Search, "name", "username", "email")
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleQ := repo.db.Where(jsonArrayHasPrefix(repo.db, "roles", filter.Roles[0]))
			for _, role := range filter.Roles[1:] {
				roleQ = roleQ.Or(jsonArrayHasPrefix(repo.db, "roles", role))
			}
			q = q.Where(roleQ)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.TeamID != "" {
			q = q.Where("team_id = ?", filter.TeamID)
		}
		if !filter.CreatedFrom.IsZero() {
			q = q.Where("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			q = q.Where("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	var rows []userRow
	q = orderBy(q, core.FilterOrderings(ordering, userOrderingColumns), "created_at DESC")
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := repo.db.WithContext(ctx)

	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where("id = ?", filter.ID)
	case filter.Username != "":
		q = q.Where("username = ?", filter.Username)
	case filter.Email != "":
		q = q.Where("email = ?", filter.Email)
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where("username = ? OR email = ?", uname, email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := q.Take(&row).Error; err != nil {
		return user.User{}, trapNotFound(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.toRow(usr)
	res := repo.db.WithContext(ctx).Model(&userRow{ID: usr.ID}).Select("*").Omit("id", "created_at").Updates(&row)
	if res.Error != nil {
		return user.User{}, errors.Wrap(res.Error, "updating user")
	}
	if res.RowsAffected == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo userRepository) DeleteUsers(ctx context.Context, ids ...string) error {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	err := repo.db.WithContext(ctx).Where("id IN ?", valid).Delete(&userRow{}).Error
	return errors.Wrap(err, "deleting users")
}

// UsersExist reports whether every id is an existing user.
func (repo userRepository) UsersExist(ctx context.Context, ids ...string) (bool, error) {
	unique := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !validID(id) {
			return false, nil
		}
		unique[id] = true
	}
	if len(unique) == 0 {
		return true, nil
	}
	valid := make([]string, 0, len(unique))
	for id := range unique {
		valid = append(valid, id)
	}

	var cnt int64
	if err := repo.db.WithContext(ctx).Model(&userRow{}).Where("id IN ?", valid).Count(&cnt).Error; err != nil {
		return false, errors.Wrap(err, "counting users")
	}
	return cnt == int64(len(valid)), nil
}
