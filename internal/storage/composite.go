package storage

import (
	"context"

	"github.com/cockroachdb/errors"
)

// contextPinger is satisfied by context stores that own a connection.
type contextPinger interface {
	Ping(ctx context.Context) error
}

// Composite serves dialogue contexts from one backend (usually Redis) and
// everything else from the relational store.
type Composite struct {
	ContextStore
	ReservationStore
	base Store
}

func NewComposite(contexts ContextStore, base Store) *Composite {
	return &Composite{ContextStore: contexts, ReservationStore: base, base: base}
}

func (c *Composite) Kind() string { return c.base.Kind() + "+redis" }

func (c *Composite) Ping(ctx context.Context) error {
	if err := c.base.Ping(ctx); err != nil {
		return err
	}
	if p, ok := c.ContextStore.(contextPinger); ok {
		return errors.Wrap(p.Ping(ctx), "context store")
	}
	return nil
}
