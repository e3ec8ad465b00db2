package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Step is one named state transition of a unit of work.
type Step struct {
	Name string
	Run  func(ctx context.Context, q Querier) error
}

// UnitOfWork executes an ordered list of steps inside a single transaction.
type UnitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork creates a new unit of work runner.
func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Execute runs steps in order. The first failing step aborts the
// transaction and nothing is committed.
func (u *UnitOfWork) Execute(ctx context.Context, steps ...Step) error {
	return Tx(ctx, u.db, func(tx *sql.Tx) error {
		for _, step := range steps {
			if err := step.Run(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", step.Name, err)
			}
		}
		return nil
	})
}
