package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// eventRecord is the persisted form of model.Event. Lookup columns are
// denormalized; the payload keeps the full event.
type eventRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Kind      string    `gorm:"size:48;index"`
	OrderID   string    `gorm:"size:80;index"`
	Buyer     string    `gorm:"size:42;index"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (eventRecord) TableName() string { return "settlement_events" }

type EventFilter struct {
	Kind  model.EventKind
	Buyer string
	Since *time.Time
	Limit int
}

// OpenEventDB opens the event store. Postgres DSNs go through the pgx-backed
// gorm driver; anything else is treated as a sqlite file.
func OpenEventDB(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		dialector = postgres.Open(dsn)
	case dsn == "":
		dialector = sqlite.Open("file::memory:?cache=shared")
	default:
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	return db, nil
}

type EventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) (*EventRepo, error) {
	if err := db.AutoMigrate(&eventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate settlement_events: %w", err)
	}
	return &EventRepo{db: db}, nil
}

func (r *EventRepo) Save(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]eventRecord, 0, len(events))
	for i := range events {
		rec, err := toEventRecord(&events[i])
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

func (r *EventRepo) List(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	query := r.db.WithContext(ctx).Model(&eventRecord{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Buyer != "" {
		query = query.Where("buyer = ?", strings.ToLower(filter.Buyer))
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}

	var records []eventRecord
	if err := query.Order("created_at DESC").Limit(filter.Limit).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(records))
	for _, rec := range records {
		var ev model.Event
		if err := json.Unmarshal([]byte(rec.Payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", rec.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// ByOrder returns the settlement event of an order id, or nil when the order
// never settled.
func (r *EventRepo) ByOrder(ctx context.Context, orderID string) (*model.Event, error) {
	var rec eventRecord
	err := r.db.WithContext(ctx).
		Where("kind = ? AND order_id = ?", string(model.EventPurchaseSettled), orderID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(rec.Payload), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func toEventRecord(ev *model.Event) (eventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eventRecord{}, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	rec := eventRecord{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		Payload:   string(payload),
		CreatedAt: ev.CreatedAt.UTC(),
	}
	if ev.Purchase != nil {
		rec.OrderID = ev.Purchase.OrderID.String()
		rec.Buyer = strings.ToLower(ev.Purchase.Buyer.Hex())
	}
	return rec, nil
}
