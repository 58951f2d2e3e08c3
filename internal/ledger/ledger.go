// Package ledger records accepted placements for auditing and replay. Recorders are
// optional sinks; the canvas state never depends on them.
package ledger

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

type Entry struct {
	Seq   int64     `json:"seq"`
	X     int       `json:"x"`
	Y     int       `json:"y"`
	Color string    `json:"color"`
	Actor string    `json:"actor"`
	At    time.Time `json:"at"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Close() error                        { return nil }

// Multi writes every entry to all recorders and reports every failure.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Entry) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.Record(ctx, e))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.Close())
	}
	return err
}

// History is implemented by recorders that can be queried.
type History interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
