package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kalelend/native/kalelend"
)

// PriceRecord is one published observation.
type PriceRecord struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Asset string    `gorm:"size:32;index:idx_price_asset_ts,priority:1;not null"`
	// Price is the 6-decimal fixed-point value in base-10.
	Price     string `gorm:"size:80;not null"`
	Timestamp uint64 `gorm:"index:idx_price_asset_ts,priority:2"`
	Publisher string `gorm:"size:96"`
	CreatedAt time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (PriceRecord) TableName() string { return "kalelend_prices" }

// PriceBook stores published prices in a SQL database and serves the newest
// observation per asset.
type PriceBook struct {
	db *gorm.DB
}

// OpenPriceBook connects to the database selected by driver ("sqlite" or
// "postgres") and migrates the schema.
func OpenPriceBook(driver, dsn string) (*PriceBook, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("oracle: postgres dsn required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("oracle: unsupported price book driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("oracle: open price book: %w", err)
	}
	return NewPriceBook(db)
}

// NewPriceBook wraps an existing connection and migrates the schema.
func NewPriceBook(db *gorm.DB) (*PriceBook, error) {
	if db == nil {
		return nil, fmt.Errorf("oracle: price book database required")
	}
	if err := db.AutoMigrate(&PriceRecord{}); err != nil {
		return nil, fmt.Errorf("oracle: migrate price book: %w", err)
	}
	return &PriceBook{db: db}, nil
}

// Publish records a new observation and returns its identifier.
func (b *PriceBook) Publish(asset string, price *big.Int, ts uint64, publisher string) (uuid.UUID, error) {
	symbol := normaliseSymbol(asset)
	if symbol == "" {
		return uuid.Nil, fmt.Errorf("oracle: asset required")
	}
	if price == nil || price.Sign() <= 0 {
		return uuid.Nil, fmt.Errorf("oracle: price must be positive")
	}
	record := PriceRecord{
		ID:        uuid.New(),
		Asset:     symbol,
		Price:     price.String(),
		Timestamp: ts,
		Publisher: strings.TrimSpace(publisher),
	}
	if err := b.db.Create(&record).Error; err != nil {
		return uuid.Nil, fmt.Errorf("oracle: publish %s: %w", symbol, err)
	}
	return record.ID, nil
}

// Latest returns the newest record for asset.
func (b *PriceBook) Latest(asset string) (*PriceRecord, error) {
	symbol := normaliseSymbol(asset)
	var record PriceRecord
	err := b.db.Where("asset = ?", symbol).
		Order("timestamp DESC").
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("oracle: load %s: %w", symbol, err)
	}
	return &record, nil
}

// History returns up to limit records for asset, newest first.
func (b *PriceBook) History(asset string, limit int) ([]PriceRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var records []PriceRecord
	err := b.db.Where("asset = ?", normaliseSymbol(asset)).
		Order("timestamp DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (b *PriceBook) LastPrice(asset string) (kalelend.PriceData, error) {
	record, err := b.Latest(asset)
	if err != nil {
		return kalelend.PriceData{}, err
	}
	price, ok := new(big.Int).SetString(record.Price, 10)
	if !ok {
		return kalelend.PriceData{}, fmt.Errorf("oracle: corrupt price %q for %s", record.Price, record.Asset)
	}
	return kalelend.PriceData{Price: price, Timestamp: record.Timestamp}, nil
}

// Close releases the underlying connection pool.
func (b *PriceBook) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
