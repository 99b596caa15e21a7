package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type BunConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// BunStore persists records in Postgres through bun.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ Store = (*BunStore)(nil)

func NewBunStore(cfg BunConfig) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)

	return &BunStore{
		db:  bun.NewDB(sqldb, pgdialect.New()),
		now: time.Now,
	}, nil
}

func (s *BunStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	c := new(Customer)
	err := s.db.NewSelect().Model(c).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (s *BunStore) ListCustomers(ctx context.Context, status string, limit int) ([]Customer, error) {
	var out []Customer
	q := s.db.NewSelect().Model(&out).Order("id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return out, nil
}

func (s *BunStore) UpdateCustomer(ctx context.Context, id int64, fields map[string]any) (*Customer, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	cols, err := ApplyFields(c, fields)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	cols = append(cols, "updated_at")

	res, err := s.db.NewUpdate().
		Model(c).
		Column(cols...).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

func (s *BunStore) CreateTicket(ctx context.Context, t *Ticket) (*Ticket, error) {
	if _, err := s.GetCustomer(ctx, t.CustomerID); err != nil {
		return nil, err
	}

	created := *t
	if created.Status == "" {
		created.Status = TicketOpen
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.NewInsert().Model(&created).Returning("id").Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	return &created, nil
}

func (s *BunStore) TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error) {
	var out []Ticket
	err := s.db.NewSelect().
		Model(&out).
		Where("customer_id = ?", customerID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return out, nil
}
