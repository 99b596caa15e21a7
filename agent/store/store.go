// Package store owns the customer and ticket records behind the data tool
// server. All mutation goes through the fixed tool operations; nothing else
// in the system touches these types directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrUnknownField     = errors.New("unknown customer field")
)

const (
	CustomerActive   = "active"
	CustomerDisabled = "disabled"

	TicketOpen = "open"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers" json:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name" json:"name"`
	Email     string    `bun:"email" json:"email"`
	Status    string    `bun:"status" json:"status"`
	Plan      string    `bun:"plan" json:"plan"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at" json:"updated_at"`
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets" json:"-"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	CustomerID int64     `bun:"customer_id" json:"customer_id"`
	Issue      string    `bun:"issue" json:"issue"`
	Status     string    `bun:"status" json:"status"`
	Priority   string    `bun:"priority" json:"priority"`
	CreatedAt  time.Time `bun:"created_at" json:"created_at"`
}

// Store is the persistence contract consumed by the tool server. UpdateCustomer
// has merge semantics: only the supplied fields change. TicketsForCustomer is
// chronological; ListCustomers is id order.
type Store interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	ListCustomers(ctx context.Context, status string, limit int) ([]Customer, error)
	UpdateCustomer(ctx context.Context, id int64, fields map[string]any) (*Customer, error)
	CreateTicket(ctx context.Context, t *Ticket) (*Ticket, error)
	TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error)
}

// updatableFields maps the wire field names accepted by update_customer to a
// setter. Unknown names fail validation before any write happens.
var updatableFields = map[string]func(c *Customer, v string){
	"name":   func(c *Customer, v string) { c.Name = v },
	"email":  func(c *Customer, v string) { c.Email = v },
	"status": func(c *Customer, v string) { c.Status = v },
	"plan":   func(c *Customer, v string) { c.Plan = v },
}

// ApplyFields merges fields into c, returning the touched column names.
func ApplyFields(c *Customer, fields map[string]any) ([]string, error) {
	cols := make([]string, 0, len(fields))
	for name, raw := range fields {
		set, ok := updatableFields[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be a string", ErrUnknownField, name)
		}
		set(c, v)
		cols = append(cols, name)
	}
	return cols, nil
}
