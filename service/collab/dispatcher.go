package collab

import (
	"context"

	"PNotepad/tools/errs"
)

// Handler processes one inbound frame type.
type Handler interface {
	Type() string
	Handle(ctx context.Context, s *Server, f *Frame, conn *Conn) error
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(hs ...Handler) {
	for _, h := range hs {
		d.handlers[h.Type()] = h
	}
}

func (d *Dispatcher) GetHandler(t string) Handler {
	return d.handlers[t]
}

func (d *Dispatcher) Dispatch(ctx context.Context, s *Server, f *Frame, conn *Conn) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrBadRequest.WrapMsg("no handler for frame", "type", f.Type)
	}
	return h.Handle(ctx, s, f, conn)
}
