package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/logging"
)

// DefaultQuietPeriod is how long edits must pause before a render.
const DefaultQuietPeriod = 1000 * time.Millisecond

// Renderer turns source text into image bytes and their media type.
type Renderer interface {
	Preview(ctx context.Context, code string) ([]byte, string, error)
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Phase      Phase       `json:"phase"`
	Outcome    Outcome     `json:"outcome"`
	Generation uint64      `json:"generation"`
	Image      blob.Handle `json:"image,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Config configures a Controller.
type Config struct {
	Renderer    Renderer
	Store       *blob.Store
	QuietPeriod time.Duration
	Clock       Clock
	Logger      *slog.Logger
}

// Controller debounces edits and renders the latest text. Safe for
// concurrent use.
type Controller struct {
	renderer Renderer
	store    *blob.Store
	quiet    time.Duration
	clock    Clock
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	timer  Timer
	closed bool
	subs   map[int]chan Snapshot
	nextID int

	closeOnce sync.Once
}

// NewController creates a Controller in the Idle phase.
func NewController(cfg Config) *Controller {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Store == nil {
		cfg.Store = blob.NewStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		renderer: cfg.Renderer,
		store:    cfg.Store,
		quiet:    cfg.QuietPeriod,
		clock:    cfg.Clock,
		logger:   logging.OrDiscard(cfg.Logger),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]chan Snapshot),
	}
}

// Edit records new source text and restarts the quiet period. A request
// already in flight keeps running but its response will be discarded.
func (c *Controller) Edit(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	var token uint64
	c.state, token = c.state.Edit(text)
	c.timer = c.clock.AfterFunc(c.quiet, func() { c.fire(token) })
	c.publishLocked()
}

func (c *Controller) fire(token uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev := c.state.Phase
	var req Request
	var ok bool
	c.state, req, ok = c.state.Fire(token)
	if ok {
		c.wg.Add(1)
	}
	if c.state.Phase != prev {
		c.publishLocked()
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	c.logger.Debug("preview requested", "generation", req.Generation, "bytes", len(req.Text))
	go c.render(req)
}

func (c *Controller) render(req Request) {
	defer c.wg.Done()
	data, contentType, err := c.renderer.Preview(c.ctx, req.Text)
	c.resolve(req.Generation, data, contentType, err)
}

func (c *Controller) resolve(gen uint64, data []byte, contentType string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.state.Current(gen) {
		c.logger.Debug("discarding stale preview", "generation", gen, "current", c.state.Generation)
		return
	}

	var img blob.Handle
	var msg string
	if err != nil {
		msg = message(err)
		c.logger.Info("preview failed", "generation", gen, "error", msg)
	} else {
		img = c.store.Acquire(data, contentType)
	}

	var release blob.Handle
	c.state, release, _ = c.state.Resolve(gen, img, msg)
	if release != "" {
		c.store.Release(release)
	}
	c.publishLocked()
}

// message maps a render failure to the text shown to the user.
func message(err error) string {
	if fe, ok := errors.As(err); ok {
		switch fe.Code {
		case errors.ErrTransport:
			return errors.MsgServiceUnreachable
		case errors.ErrValidation:
			return fe.Message
		}
	}
	return errors.MsgFallbackDiagnostic
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:      c.state.Phase,
		Outcome:    c.state.Outcome,
		Generation: c.state.Generation,
		Image:      c.state.LastGood,
		Error:      c.state.LastError,
	}
}

// Image returns the last good image, if any.
func (c *Controller) Image() (blob.Blob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.LastGood == "" {
		return blob.Blob{}, false
	}
	return c.store.Get(c.state.LastGood)
}

// Subscribe returns a channel of snapshots. Delivery is coalesced: a slow
// reader sees the latest snapshot, not every one. The channel is closed by
// cancel or Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Close stops the debounce timer, abandons in-flight requests and releases
// the last good image. Later calls are no-ops.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.timer != nil {
			c.timer.Stop()
		}
		if c.state.LastGood != "" {
			c.store.Release(c.state.LastGood)
			c.state.LastGood = ""
		}
		for id, ch := range c.subs {
			delete(c.subs, id)
			close(ch)
		}
		c.mu.Unlock()

		c.cancel()
		c.wg.Wait()
	})
}
