package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Placement is the row stored per accepted placement.
type Placement struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement:false"`
	X         int       `gorm:"not null"`
	Y         int       `gorm:"not null"`
	Color     string    `gorm:"size:16;not null"`
	Actor     string    `gorm:"size:64;not null;index"`
	PlacedAt  time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (Placement) TableName() string { return "placements" }

type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: open postgres: %w", err)
	}
	return NewPostgres(db)
}

// NewPostgres migrates the placements table on db.
func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&Placement{}); err != nil {
		return nil, fmt.Errorf("gorm: migrate placements: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	row := Placement{
		Seq:      e.Seq,
		X:        e.X,
		Y:        e.Y,
		Color:    e.Color,
		Actor:    e.Actor,
		PlacedAt: e.At,
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gorm: save placement %d: %w", e.Seq, err)
	}
	return nil
}

// Recent returns the latest placements, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Placement
	if err := p.db.WithContext(ctx).Order("seq DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm: recent placements: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{Seq: r.Seq, X: r.X, Y: r.Y, Color: r.Color, Actor: r.Actor, At: r.PlacedAt})
	}
	return out, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
