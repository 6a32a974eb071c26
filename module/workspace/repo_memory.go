package workspace

import (
	"context"
	"sort"
	"sync"
	"time"

	"PNotepad/tools/errs"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]*Workspace
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]*Workspace)}
}

func (r *MemoryRepo) Create(_ context.Context, w *Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[w.ID]; ok {
		return errs.ErrBadRequest.WrapMsg("workspace exists", "id", w.ID)
	}
	cp := *w
	r.byID[w.ID] = &cp
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryRepo) ListByOwner(_ context.Context, owner string) ([]*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workspace, 0)
	for _, w := range r.byID {
		if w.Owner == owner {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) SaveContent(_ context.Context, id, content string, at time.Time) error {
	return r.update(id, func(w *Workspace) {
		w.Content = content
		w.UpdatedAt = at
	})
}

func (r *MemoryRepo) SetLive(_ context.Context, id string, live bool, at time.Time) error {
	return r.update(id, func(w *Workspace) {
		w.Live = live
		w.UpdatedAt = at
	})
}

func (r *MemoryRepo) update(id string, f func(w *Workspace)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return errs.ErrNotFound.WrapMsg("workspace", "id", id)
	}
	f(w)
	return nil
}
