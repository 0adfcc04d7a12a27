// Package gormdb implements the core repositories with gorm, over postgres or sqlite.
package gormdb

import (
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trezcool/huddle/core"
)

// OpenSQLite opens a sqlite database (a file path, or ":memory:") and creates the schema.
// The pool is limited to one connection: an in-memory database only lives on the connection that created it.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "getting sqlite pool")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates the schema from the gorm models. Postgres databases are migrated with the SQL migrations instead.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&userRow{},
		&playbookRow{},
		&playRow{},
		&frameRow{},
		&subscriptionRow{},
		&announcementRow{},
		&videoRow{},
		&markerRow{},
		&taskRow{},
		&assignmentRow{},
		&roomRow{},
		&messageRow{},
	)
	return errors.Wrap(err, "migrating schema")
}

func newID() string {
	return uuid.New().String()
}

// validID reports whether id may be a primary key; anything else cannot match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// trapNotFound maps gorm's "record not found" err to notFound
func trapNotFound(err error, notFound error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// orderBy adds the ordering to the query; fields must already be column names.
func orderBy(db *gorm.DB, ordering []core.DBOrdering, fallback string) *gorm.DB {
	if len(ordering) == 0 {
		return db.Order(fallback)
	}
	for _, ord := range ordering {
		db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: ord.Field}, Desc: !ord.Ascending})
	}
	return db
}

// likeAny matches the lower-cased search keyword against any of the columns.
func likeAny(db *gorm.DB, search string, columns ...string) *gorm.DB {
	val := "%" + strings.ToLower(search) + "%"
	conds := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		conds = append(conds, "LOWER("+col+") LIKE ?")
		args = append(args, val)
	}
	return db.Where("("+strings.Join(conds, " OR ")+")", args...)
}

// jsonArrayHasPrefix matches rows whose JSON string array `column` has an element starting with prefix.
func jsonArrayHasPrefix(db *gorm.DB, column, prefix string) (string, interface{}) {
	if db.Dialector.Name() == "postgres" {
		return "EXISTS (SELECT 1 FROM jsonb_array_elements_text(" + column + ") AS elem WHERE elem LIKE ?)", prefix + "%"
	}
	return "EXISTS (SELECT 1 FROM json_each(" + column + ") WHERE json_each.value LIKE ?)", prefix + "%"
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
