// Package database holds contracts shared by collection-backed repositories.
package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Table is a repository bound to one mongo collection.
type Table interface {
	GetTableName() string
	Collection() *mongo.Collection
	EnsureIndexes(ctx context.Context) error
}

// Prepare creates the indexes of every table, each bounded by timeout.
func Prepare(ctx context.Context, timeout time.Duration, tables ...Table) error {
	for _, t := range tables {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		err := t.EnsureIndexes(tctx)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}
