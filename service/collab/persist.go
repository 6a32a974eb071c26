package collab

import (
	"context"
	"sync"
	"time"

	"PNotepad/logger"
	"PNotepad/service/events"
	"PNotepad/service/store"
	"PNotepad/tools/errs"
	"PNotepad/tools/safe"

	"go.uber.org/zap"
)

// Store is the part of the Workspace Store client the coordinator uses.
type Store interface {
	Get(ctx context.Context, id string) (*store.Snapshot, error)
	SaveContent(ctx context.Context, id, content string) error
	SetLive(ctx context.Context, id string, live bool) error
}

type CoordinatorConf struct {
	CallTimeout time.Duration // per store call, retries included
	LiveRetry   time.Duration // pause before rewriting a live flag that failed
	LiveTries   int           // give up on one value after this many failed writes
}

// Coordinator is the only component that talks to the Workspace Store. It
// remembers the last text it read or wrote per workspace and uses it when the
// store is briefly unreachable.
type Coordinator struct {
	conf   CoordinatorConf
	store  Store
	events events.Publisher
	log    *zap.Logger

	mu        sync.Mutex
	lastKnown map[string]string
	saves     map[string]*saveState
	live      map[string]*liveState
	flushers  sync.WaitGroup
}

// saveState serializes the saves of one workspace. written is the newest
// revision the store holds; mu is held across the store call.
type saveState struct {
	mu      sync.Mutex
	written Revision
	ok      bool
}

// liveState is the desired flag of one workspace; version counts requests
// so a flusher knows whether what it wrote is still wanted.
type liveState struct {
	want    bool
	version uint64
}

func NewCoordinator(conf CoordinatorConf, st Store, pub events.Publisher) *Coordinator {
	safe.MustNotNil(st, "store")
	if conf.CallTimeout <= 0 {
		conf.CallTimeout = 10 * time.Second
	}
	if conf.LiveRetry <= 0 {
		conf.LiveRetry = time.Second
	}
	if conf.LiveTries <= 0 {
		conf.LiveTries = 5
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Coordinator{
		conf:      conf,
		store:     st,
		events:    pub,
		log:       logger.Named("persist"),
		lastKnown: make(map[string]string),
		saves:     make(map[string]*saveState),
		live:      make(map[string]*liveState),
	}
}

// SeedFromStore returns the text a new room starts with. A missing workspace
// is an error. A transient store failure falls back to the last snapshot this
// node saw, if any.
func (c *Coordinator) SeedFromStore(ctx context.Context, workspaceID string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.conf.CallTimeout)
	defer cancel()

	snap, err := c.store.Get(cctx, workspaceID)
	if err == nil {
		c.remember(workspaceID, snap.Content)
		return snap.Content, nil
	}
	if errs.ErrNotFound.Is(err) || !errs.IsRetryable(err) {
		return "", err
	}

	c.mu.Lock()
	text, ok := c.lastKnown[workspaceID]
	c.mu.Unlock()
	if !ok {
		return "", err
	}
	c.log.Warn("store unavailable, seeding from last known snapshot",
		zap.String("workspace", workspaceID), zap.Error(err))
	return text, nil
}

// Save writes text, taken from the room at rev, as the workspace content.
// Saves of one workspace run one at a time; a save whose revision is not
// newer than what the store already holds succeeds without writing, so an
// older text never replaces a newer one.
func (c *Coordinator) Save(ctx context.Context, workspaceID, text string, rev Revision) error {
	st := c.saveStateOf(workspaceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ok && !rev.After(st.written) {
		c.log.Debug("save superseded",
			zap.String("workspace", workspaceID),
			zap.Uint64("seq", rev.Sequence),
			zap.Uint64("written_seq", st.written.Sequence))
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, c.conf.CallTimeout)
	defer cancel()
	if err := c.store.SaveContent(cctx, workspaceID, text); err != nil {
		c.log.Warn("save failed", zap.String("workspace", workspaceID), zap.Uint64("seq", rev.Sequence), zap.Error(err))
		return err
	}
	st.written, st.ok = rev, true
	c.remember(workspaceID, text)
	c.events.Publish(events.Event{
		Kind:        events.SnapshotSaved,
		WorkspaceID: workspaceID,
		Sequence:    rev.Sequence,
	})
	return nil
}

func (c *Coordinator) saveStateOf(workspaceID string) *saveState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.saves[workspaceID]
	if !ok {
		st = &saveState{}
		c.saves[workspaceID] = st
	}
	return st
}

func (c *Coordinator) remember(workspaceID, text string) {
	c.mu.Lock()
	c.lastKnown[workspaceID] = text
	c.mu.Unlock()
}

// LastKnown returns the cached text of a workspace.
func (c *Coordinator) LastKnown(workspaceID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.lastKnown[workspaceID]
	return text, ok
}

// SetLive records the wanted flag and returns immediately. One flusher per
// workspace writes it; requests made while a write is in flight collapse so
// the last one wins.
func (c *Coordinator) SetLive(workspaceID string, live bool) {
	c.mu.Lock()
	st, flushing := c.live[workspaceID]
	if !flushing {
		st = &liveState{}
		c.live[workspaceID] = st
	}
	st.want = live
	st.version++
	c.mu.Unlock()

	if flushing {
		return
	}
	c.flushers.Add(1)
	safe.Go("live-flusher", func() {
		defer c.flushers.Done()
		c.flushLive(workspaceID, st)
	})
}

func (c *Coordinator) flushLive(workspaceID string, st *liveState) {
	var (
		lastVer uint64
		tries   int
	)
	for {
		c.mu.Lock()
		want, ver := st.want, st.version
		c.mu.Unlock()
		if ver != lastVer {
			lastVer, tries = ver, 0
		}
		tries++

		ctx, cancel := context.WithTimeout(context.Background(), c.conf.CallTimeout)
		err := c.store.SetLive(ctx, workspaceID, want)
		cancel()

		c.mu.Lock()
		if st.version == ver && (err == nil || !errs.IsRetryable(err) || tries >= c.conf.LiveTries) {
			delete(c.live, workspaceID)
			c.mu.Unlock()
			if err != nil {
				c.log.Warn("set live failed", zap.String("workspace", workspaceID), zap.Bool("live", want), zap.Error(err))
			}
			return
		}
		retry := st.version == ver
		c.mu.Unlock()

		if retry {
			c.log.Warn("set live failed, retrying", zap.String("workspace", workspaceID), zap.Bool("live", want), zap.Error(err))
			time.Sleep(c.conf.LiveRetry)
		}
	}
}

// Flush waits until every pending live flag is written or ctx expires.
func (c *Coordinator) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.flushers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.ErrStore.WrapCause(ctx.Err(), true, "live flags still pending")
	}
}
