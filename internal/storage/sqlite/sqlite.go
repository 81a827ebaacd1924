// Package sqlite implements the order and product stores on SQLite through
// GORM. Writes are not grouped into transactions, so order creation relies on
// compensation when item inserts fail.
package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type productRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Description string
	Price       decimal.Decimal `gorm:"type:text;not null"`
	ImageURL    string
	SellerID    string
	CreatedAt   time.Time
}

func (productRow) TableName() string { return "products" }

type orderRow struct {
	ID                string          `gorm:"primaryKey"`
	UserID            string          `gorm:"not null;index:idx_orders_user_created,priority:1"`
	TotalAmount       decimal.Decimal `gorm:"type:text;not null"`
	Status            string          `gorm:"not null"`
	RazorpayOrderID   string
	RazorpayPaymentID *string   `gorm:"uniqueIndex"`
	RazorpaySignature string
	CreatedAt         time.Time `gorm:"index:idx_orders_user_created,priority:2"`

	Items []orderItemRow `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderRow) TableName() string { return "orders" }

type orderItemRow struct {
	ID              uint            `gorm:"primaryKey"`
	OrderID         string          `gorm:"not null;index"`
	ProductID       string          `gorm:"not null"`
	Quantity        int             `gorm:"not null;check:quantity > 0"`
	PriceAtPurchase decimal.Decimal `gorm:"type:text;not null"`
	TotalPrice      decimal.Decimal `gorm:"type:text;not null"`

	Product productRow `gorm:"foreignKey:ProductID"`
}

func (orderItemRow) TableName() string { return "order_items" }

// Open opens the SQLite database at path with foreign keys enforced and
// migrates the schema.
func Open(path string) (*gorm.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on"
	} else {
		dsn += "?_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&productRow{}, &orderRow{}, &orderItemRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.PingContext(ctx)
}
