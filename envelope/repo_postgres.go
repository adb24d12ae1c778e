package envelope

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var validTable = regexp.MustCompile(`^[A-Za-z0-9_\\.]+$`)

var (
	ErrRecordNotFound = errors.New("envelope record not found")
	ErrRecordExists   = errors.New("envelope record already exists")
)

// EnvelopeRepository stores sealed records. Records are write-once.
type EnvelopeRepository interface {
	PutRecord(ctx context.Context, rec *EnvelopeRecord) error
	GetRecord(ctx context.Context, name string) (*EnvelopeRecord, error)
}

// GormEnvelopeRepository keeps records in a SQL table through gorm. Records
// never change once written, so reads are cached for a minute.
type GormEnvelopeRepository struct {
	db    *gorm.DB
	table string
	cache *TTLCache[*EnvelopeRecord]
}

func (p *GormEnvelopeRepository) SetDB(db *gorm.DB) { p.db = db }

func NewPostgresEnvelopeRepository(dsn, table string) (*GormEnvelopeRepository, error) {
	return NewGormEnvelopeRepository(postgres.Open(dsn), table)
}

func NewGormEnvelopeRepository(dialector gorm.Dialector, table string) (*GormEnvelopeRepository, error) {
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &GormEnvelopeRepository{
		db: db, table: table,
		cache: NewTTLCache[*EnvelopeRecord](4096, time.Minute),
	}, nil
}

// Migrate creates or updates the records table.
func (r *GormEnvelopeRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).Table(r.table).AutoMigrate(&EnvelopeRecord{})
}

func (r *GormEnvelopeRepository) PutRecord(ctx context.Context, rec *EnvelopeRecord) error {
	var n int64
	if err := r.db.WithContext(ctx).Table(r.table).Where("name = ?", rec.Name).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %q", ErrRecordExists, rec.Name)
	}
	if err := r.db.WithContext(ctx).Table(r.table).Create(rec).Error; err != nil {
		return fmt.Errorf("insert envelope record: %w", err)
	}
	return nil
}

func (r *GormEnvelopeRepository) GetRecord(ctx context.Context, name string) (*EnvelopeRecord, error) {
	if rec, ok := r.cache.Get(name); ok && rec != nil {
		return rec.clone(), nil
	}
	var rec EnvelopeRecord

	tx := r.db.WithContext(ctx).
		Table(r.table).
		Where("name = ?", name)

	if err := tx.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrRecordNotFound, name)
		}
		return nil, err
	}
	r.cache.Set(name, rec.clone())
	return &rec, nil
}
