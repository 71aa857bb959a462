package store

import (
	"context"
	stdErrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	claimerrors "github.com/quayside/go-claim/v1/errors"
)

const (
	defaultGormTableName = "claim_snapshots"
	defaultGormOpTimeout = 5 * time.Second
)

// gormRow is the internal model holding one aggregate snapshot per key.
type gormRow struct {
	Key     string `gorm:"primaryKey;column:key_id"`
	Value   []byte `gorm:"column:value"`
	Version int64  `gorm:"column:version"`
}

// Gorm implements Store on a relational backend through GORM. The conditional
// write is an UPDATE guarded by the version column; creation races resolve via
// the primary-key constraint.
type Gorm[T any] struct {
	db        *gorm.DB
	tableName string
	timeout   time.Duration
	codec     Codec
}

// GormOption configures a Gorm store.
type GormOption func(*gormOptions)

type gormOptions struct {
	tableName string
	timeout   time.Duration
	codec     Codec
}

// WithGormTableName sets the table name.
func WithGormTableName(name string) GormOption {
	return func(o *gormOptions) { o.tableName = name }
}

// WithGormTimeout sets the operation timeout for database calls.
func WithGormTimeout(d time.Duration) GormOption {
	return func(o *gormOptions) { o.timeout = d }
}

// WithGormCodec sets the codec used to serialize values.
func WithGormCodec(c Codec) GormOption {
	return func(o *gormOptions) { o.codec = c }
}

// NewGorm returns a new Gorm store using the provided DB connection.
func NewGorm[T any](db *gorm.DB, opts ...GormOption) *Gorm[T] {
	o := gormOptions{
		tableName: defaultGormTableName,
		timeout:   defaultGormOpTimeout,
		codec:     JSONCodec{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !db.Migrator().HasTable(o.tableName) {
		_ = db.Table(o.tableName).AutoMigrate(&gormRow{})
	}
	return &Gorm[T]{db: db, tableName: o.tableName, timeout: o.timeout, codec: o.codec}
}

// Load implements Store.Load.
func (s *Gorm[T]) Load(ctx context.Context, key string) (Snapshot[T], bool, error) {
	var zero Snapshot[T]
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row gormRow
	err := s.db.WithContext(cctx).Table(s.tableName).First(&row, "key_id = ?", key).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, mapGormErr(err)
	}
	var v T
	if err := s.codec.Unmarshal(row.Value, &v); err != nil {
		return zero, false, err
	}
	return Snapshot[T]{Value: v, Version: row.Version}, true, nil
}

// Save implements Store.Save.
func (s *Gorm[T]) Save(ctx context.Context, key string, value T, expect int64) (int64, error) {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return 0, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	next := expect + 1
	if expect == 0 {
		// Creation race: whoever inserts first wins, the loser conflicts.
		res := s.db.WithContext(cctx).Table(s.tableName).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&gormRow{Key: key, Value: data, Version: next})
		if res.Error != nil {
			return 0, mapGormErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return 0, claimerrors.Conflict(key)
		}
		return next, nil
	}
	res := s.db.WithContext(cctx).Table(s.tableName).
		Where("key_id = ? AND version = ?", key, expect).
		Updates(map[string]any{"value": data, "version": next})
	if res.Error != nil {
		return 0, mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, claimerrors.Conflict(key)
	}
	return next, nil
}

func mapGormErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return claimerrors.ErrTimeout
	}
	return err
}
