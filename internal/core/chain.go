package core

// chain.go defines the row processor chain.
//
// A chain is a linked list of stages. Each stage knows only its successor.
// Lifecycle calls (BeforeFile, AfterFile, AbortFile) run the stage's own work
// first and then forward, so they fire once per stage in chain order, for
// "after" as well as "before". Stages that do not care about a lifecycle
// event embed Forward to get the forwarding for free.

import (
	"context"
)

// Lifecycle is the file-level part of a stage.
type Lifecycle interface {
	// BeforeFile is called once when fc is opened, before its first row.
	BeforeFile(ctx context.Context, fc *FileContext) error

	// AfterFile is called once after the last row of fc was processed
	// successfully. Per-file resources must be released here.
	AfterFile(ctx context.Context, fc *FileContext) error

	// AbortFile replaces AfterFile when processing of fc failed. It releases
	// per-file resources without committing anything and must be safe to
	// call for a stage whose BeforeFile never ran.
	AbortFile(ctx context.Context, fc *FileContext, cause error)
}

// Processor is one stage of the chain, consuming rows of payload type R.
//
// ProcessRow returns the context as seen by this stage. Stages that change
// the payload type forward a derived context and hand back the original one,
// so a return value is only meaningful to the immediate predecessor.
type Processor[R any] interface {
	Lifecycle
	ProcessRow(ctx context.Context, rc RowContext[R]) (RowContext[R], error)
}

// Forward implements Lifecycle by delegating to Next. A nil Next makes every
// call a no-op, which is the behavior of a terminal stage.
type Forward struct {
	Next Lifecycle
}

// BeforeFile forwards to Next.
func (f Forward) BeforeFile(ctx context.Context, fc *FileContext) error {
	if f.Next == nil {
		return nil
	}
	return f.Next.BeforeFile(ctx, fc)
}

// AfterFile forwards to Next.
func (f Forward) AfterFile(ctx context.Context, fc *FileContext) error {
	if f.Next == nil {
		return nil
	}
	return f.Next.AfterFile(ctx, fc)
}

// AbortFile forwards to Next.
func (f Forward) AbortFile(ctx context.Context, fc *FileContext, cause error) {
	if f.Next != nil {
		f.Next.AbortFile(ctx, fc, cause)
	}
}

// RowFunc adapts a function to a terminal Processor with no lifecycle work.
type RowFunc[R any] func(ctx context.Context, rc RowContext[R]) error

// BeforeFile does nothing.
func (f RowFunc[R]) BeforeFile(context.Context, *FileContext) error { return nil }

// AfterFile does nothing.
func (f RowFunc[R]) AfterFile(context.Context, *FileContext) error { return nil }

// AbortFile does nothing.
func (f RowFunc[R]) AbortFile(context.Context, *FileContext, error) {}

// ProcessRow calls f and returns rc unchanged.
func (f RowFunc[R]) ProcessRow(ctx context.Context, rc RowContext[R]) (RowContext[R], error) {
	return rc, f(ctx, rc)
}

// Collector is a terminal stage that keeps every row it receives in memory,
// for inspecting what a chain emits. It grows without bound.
type Collector[R any] struct {
	Rows []RowContext[R]
}

// BeforeFile does nothing.
func (c *Collector[R]) BeforeFile(context.Context, *FileContext) error { return nil }

// AfterFile does nothing.
func (c *Collector[R]) AfterFile(context.Context, *FileContext) error { return nil }

// AbortFile does nothing.
func (c *Collector[R]) AbortFile(context.Context, *FileContext, error) {}

// ProcessRow appends rc.
func (c *Collector[R]) ProcessRow(_ context.Context, rc RowContext[R]) (RowContext[R], error) {
	c.Rows = append(c.Rows, rc)
	return rc, nil
}

// Payloads returns the collected payloads in arrival order.
func (c *Collector[R]) Payloads() []R {
	out := make([]R, len(c.Rows))
	for i, rc := range c.Rows {
		out[i] = rc.Row
	}
	return out
}
