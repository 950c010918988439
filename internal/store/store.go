// Package store is the SQLite datastore opened for each request.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kod-kristoff/reqscope/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Data is a row of the data table.
type Data struct {
	Key   string `gorm:"column:key;primaryKey" json:"key"`
	Value string `gorm:"column:value" json:"value"`
}

func (Data) TableName() string {
	return "data"
}

// Store is a connection to the datastore.
type Store struct {
	db *gorm.DB
}

// Open connects to the database at dsn, creates the data table if needed
// and seeds it with the ("hello", "world") row.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: logger.New(
			slog.NewLogLogger(log.Handler(), slog.LevelDebug),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "store.Open")
	}

	// Every connection to ":memory:" is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "store.Open")
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		return nil, errors.Join(errors.Wrap(err, "store.Open"), s.Close())
	}

	log.DebugContext(ctx, "opened store", "dsn", dsn)
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&Data{}); err != nil {
		return err
	}

	return s.Put(ctx, Data{Key: "hello", Value: "world"})
}

// Put inserts or replaces a row.
func (s *Store) Put(ctx context.Context, d Data) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&d).Error

	return errors.Wrapf(err, "store.Put %s", d.Key)
}

// All returns all rows ordered by key.
func (s *Store) All(ctx context.Context) ([]Data, error) {
	var rows []Data
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "store.All")
	}

	return rows, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "store.Close")
	}

	return errors.Wrap(sqlDB.Close(), "store.Close")
}
