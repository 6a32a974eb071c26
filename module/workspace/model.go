// Package workspace is a small Workspace Store: the durable side of the
// persistence boundary the sync gateway talks to. It is meant for
// development and tests; production deployments point the gateway at their
// own store.
package workspace

import (
	"context"
	"time"
)

// Workspace is the durable record of one notepad.
type Workspace struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Owner     string    `json:"owner" bson:"owner"`
	Content   string    `json:"content" bson:"content"`
	Live      bool      `json:"live" bson:"live"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Repository stores workspaces. Unknown ids yield errs.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, w *Workspace) error
	Get(ctx context.Context, id string) (*Workspace, error)
	ListByOwner(ctx context.Context, owner string) ([]*Workspace, error)
	SaveContent(ctx context.Context, id, content string, at time.Time) error
	SetLive(ctx context.Context, id string, live bool, at time.Time) error
}
