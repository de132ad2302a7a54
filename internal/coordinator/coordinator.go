package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/characteristic"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

const (
	defaultFetchTimeout  = 15 * time.Second
	defaultUpdateTimeout = 15 * time.Second
)

// Options configures a Coordinator.
type Options struct {
	// Remote performs the MELCloud calls. Required.
	Remote Remote

	// Session supplies the token and display-unit preference. Required.
	Session Session

	// Mapper translates characteristics. Required.
	Mapper *characteristic.Mapper

	// CacheTTL defaults to DefaultCacheTTL.
	CacheTTL time.Duration

	// FetchTimeout bounds a single device fetch. A fetch that never
	// answers would otherwise hold the single fetch slot forever.
	FetchTimeout time.Duration

	// UpdateTimeout bounds a single device update.
	UpdateTimeout time.Duration

	// Clock is used for cache expiry and write records. Defaults to time.Now.
	Clock func() time.Time

	// Observer is optional.
	Observer Observer

	// Logger is optional.
	Logger Logger
}

// pending is a request waiting to be, or being, served.
type pending struct {
	req      Request
	callback Callback
	done     bool
}

type event interface{}

type submitEvent struct{ op *pending }

type fetchDoneEvent struct {
	op   *pending
	snap *melcloud.Snapshot
	err  error
}

type updateDoneEvent struct {
	op  *pending
	err error
}

type statsEvent struct{ reply chan Stats }

// Coordinator is the single-flight, cached gateway to device state.
//
// Thread Safety: Submit, Read, Write, Stats and Stop are safe for
// concurrent use. All other state belongs to the loop goroutine.
type Coordinator struct {
	remote        Remote
	session       Session
	mapper        *characteristic.Mapper
	cache         *Cache
	observer      Observer
	logger        Logger
	clock         func() time.Time
	fetchTimeout  time.Duration
	updateTimeout time.Duration

	// mailbox
	mu      sync.Mutex
	events  []event
	wake    chan struct{}
	started bool
	closed  bool

	// owned by the loop goroutine
	inFlight int
	queue    []*pending
	stopping bool

	ctx       context.Context
	ctxCancel context.CancelFunc
	workers   sync.WaitGroup
	done      chan struct{}
	stopOnce  sync.Once
}

// NewCoordinator creates a coordinator. Call Start to begin serving.
// Requests submitted before Start are held until it is called.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.Mapper == nil {
		return nil, fmt.Errorf("mapper is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	updateTimeout := opts.UpdateTimeout
	if updateTimeout <= 0 {
		updateTimeout = defaultUpdateTimeout
	}
	var observer Observer = noopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Coordinator{
		remote:        opts.Remote,
		session:       opts.Session,
		mapper:        opts.Mapper,
		cache:         NewCache(opts.CacheTTL, clock),
		observer:      observer,
		logger:        logger,
		clock:         clock,
		fetchTimeout:  fetchTimeout,
		updateTimeout: updateTimeout,
		wake:          make(chan struct{}, 1),
		ctx:           ctx,
		ctxCancel:     ctxCancel,
		done:          make(chan struct{}),
	}, nil
}

// Start launches the loop goroutine.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	go c.run()
	c.logger.Info("coordinator started", "cache_ttl", c.cache.TTL().String())
	return nil
}

// Stop aborts in-flight calls, completes every pending request with no
// value and waits for the loop to exit. Later Submits complete at once
// with no value.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		started := c.started
		var leftover []event
		if !started {
			c.closed = true
			leftover = c.events
			c.events = nil
		}
		c.mu.Unlock()

		c.ctxCancel()

		if !started {
			for _, ev := range leftover {
				if s, ok := ev.(submitEvent); ok {
					c.complete(s.op, Result{})
				}
			}
			close(c.done)
			return
		}
		<-c.done
		c.logger.Info("coordinator stopped")
	})
}

// Submit queues req. callback is invoked exactly once with the result.
// Submit never blocks.
func (c *Coordinator) Submit(req Request, callback Callback) {
	if callback == nil {
		callback = func(Result) {}
	}
	op := &pending{req: req, callback: callback}
	if !c.post(submitEvent{op: op}) {
		c.complete(op, Result{})
	}
}

// Read submits a read and waits for its result.
func (c *Coordinator) Read(ctx context.Context, device Target, kind characteristic.Kind) (Result, error) {
	return c.await(ctx, Request{Device: device, Kind: kind, Op: characteristic.Read})
}

// Write submits a write and waits for MELCloud to answer the update.
func (c *Coordinator) Write(ctx context.Context, device Target, kind characteristic.Kind, value float64) (Result, error) {
	return c.await(ctx, Request{Device: device, Kind: kind, Op: characteristic.Write, Value: value})
}

func (c *Coordinator) await(ctx context.Context, req Request) (Result, error) {
	ch := make(chan Result, 1)
	c.Submit(req, func(r Result) { ch <- r })

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stats returns the loop's current counters.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if !c.post(statsEvent{reply: reply}) {
		return Stats{}, ErrStopped
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-c.done:
		return Stats{}, ErrStopped
	}
}

// post appends ev to the mailbox. It reports false once the loop has exited.
func (c *Coordinator) post(ev event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.events = append(c.events, ev)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// take empties the mailbox. When closeIfEmpty is set and nothing is
// waiting, the mailbox is closed in the same critical section.
func (c *Coordinator) take(closeIfEmpty bool) []event {
	c.mu.Lock()
	defer c.mu.Unlock()

	evs := c.events
	c.events = nil
	if len(evs) == 0 && closeIfEmpty {
		c.closed = true
	}
	return evs
}

func (c *Coordinator) run() {
	defer close(c.done)

	for {
		select {
		case <-c.wake:
			c.process(false)
		case <-c.ctx.Done():
			c.shutdown()
			return
		}
	}
}

func (c *Coordinator) process(closeIfEmpty bool) bool {
	handled := false
	for {
		evs := c.take(closeIfEmpty)
		if len(evs) == 0 {
			return handled
		}
		handled = true
		for _, ev := range evs {
			c.handle(ev)
			c.drain()
		}
	}
}

func (c *Coordinator) shutdown() {
	c.stopping = true

	// Workers observe the cancelled context and post their completions.
	c.workers.Wait()
	c.process(true)

	for _, op := range c.queue {
		c.complete(op, Result{})
	}
	c.queue = nil
	queueDepthGauge.Set(0)
}

func (c *Coordinator) handle(ev event) {
	switch e := ev.(type) {
	case submitEvent:
		c.submit(e.op)
	case fetchDoneEvent:
		c.fetchDone(e)
	case updateDoneEvent:
		c.updateDone(e)
	case statsEvent:
		e.reply <- Stats{
			InFlight:      c.inFlight,
			QueueDepth:    len(c.queue),
			CachedDevices: c.cache.Len(),
		}
	}
}

func (c *Coordinator) submit(op *pending) {
	if c.stopping {
		c.complete(op, Result{})
		return
	}
	if c.dispatch(op) {
		return
	}

	c.queue = append(c.queue, op)
	queuedTotal.Inc()
	queueDepthGauge.Set(float64(len(c.queue)))
	c.logger.Debug("request queued",
		"device_id", op.req.Device.DeviceID,
		"characteristic", string(op.req.Kind),
		"queue_depth", len(c.queue))
}

// dispatch serves op from the cache or starts a fetch for it. It reports
// false if op has to wait for the outstanding fetch.
func (c *Coordinator) dispatch(op *pending) bool {
	if snap, ok := c.cache.Get(op.req.Device.DeviceID); ok {
		cacheHitsTotal.Inc()
		c.execute(op, snap)
		return true
	}
	if c.inFlight == 0 {
		c.startFetch(op)
		return true
	}
	return false
}

// drain replays queued requests in order. It stops as soon as a fetch is
// outstanding, so a later request never completes ahead of an earlier one.
func (c *Coordinator) drain() {
	for len(c.queue) > 0 {
		head := c.queue[0]
		if c.stopping {
			c.queue = c.queue[1:]
			c.complete(head, Result{})
			continue
		}
		if c.inFlight != 0 || !c.dispatch(head) {
			break
		}
		c.queue = c.queue[1:]
	}
	if len(c.queue) == 0 {
		c.queue = nil
	}
	queueDepthGauge.Set(float64(len(c.queue)))
}

func (c *Coordinator) startFetch(op *pending) {
	c.inFlight = 1
	inFlightGauge.Set(1)

	device := op.req.Device
	token := c.session.Token()

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
		snap, err := c.remote.FetchDevice(ctx, token, device.DeviceID, device.BuildingID)
		cancel()

		if err == nil && snap == nil {
			err = melcloud.ErrMalformedResponse
		}
		var observed *melcloud.Snapshot
		if err == nil {
			observed = snap.Clone()
		}

		// Observers run after the loop has the result; they must not
		// hold the fetch slot.
		c.post(fetchDoneEvent{op: op, snap: snap, err: err})
		if observed != nil {
			c.observer.SnapshotFetched(device, observed)
		}
	}()
}

func (c *Coordinator) fetchDone(e fetchDoneEvent) {
	c.inFlight = 0
	inFlightGauge.Set(0)

	device := e.op.req.Device.DeviceID
	if e.err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		c.cache.Clear(device)
		c.logger.Warn("device fetch failed",
			"device_id", device,
			"characteristic", string(e.op.req.Kind),
			"error", e.err)
		c.complete(e.op, Result{})
		return
	}

	fetchesTotal.WithLabelValues("ok").Inc()
	c.cache.Put(device, e.snap)
	c.logger.Debug("device fetched", "device_id", device)

	if c.stopping {
		c.complete(e.op, Result{})
		return
	}
	c.execute(e.op, e.snap)
}

// execute runs op against a live snapshot.
func (c *Coordinator) execute(op *pending, snap *melcloud.Snapshot) {
	req := op.req

	if req.Op == characteristic.Read {
		v := c.mapper.Read(req.Kind, snap, c.session.UseFahrenheit())
		c.complete(op, Result{Value: v, OK: true})
		return
	}

	res := c.mapper.Write(req.Kind, snap, req.Value)
	switch res.Action {
	case characteristic.ActionUpdateDevice:
		c.cache.Update(req.Device.DeviceID, res.Snapshot)
		c.startUpdate(op, res.Snapshot.Clone())

	case characteristic.ActionSetDisplayUnits:
		c.session.SetUseFahrenheit(res.UseFahrenheit)
		c.startDisplayUnits(res.UseFahrenheit)
		c.complete(op, Result{Value: req.Value, OK: true})

	default:
		c.logger.Debug("write ignored",
			"device_id", req.Device.DeviceID,
			"characteristic", string(req.Kind),
			"value", req.Value)
		c.complete(op, Result{Value: req.Value, OK: true})
	}
}

// startUpdate sends snap without taking the fetch slot. The callback fires
// when MELCloud answers, whatever the answer.
func (c *Coordinator) startUpdate(op *pending, snap *melcloud.Snapshot) {
	token := c.session.Token()
	req := op.req

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.updateTimeout)
		err := c.remote.UpdateDevice(ctx, token, snap)
		cancel()

		at := c.clock()
		c.post(updateDoneEvent{op: op, err: err})
		c.observer.WriteCompleted(WriteRecord{
			Device: req.Device,
			Kind:   req.Kind,
			Value:  req.Value,
			Flags:  snap.EffectiveFlags,
			Err:    err,
			At:     at,
		})
	}()
}

func (c *Coordinator) updateDone(e updateDoneEvent) {
	req := e.op.req
	if e.err != nil {
		updatesTotal.WithLabelValues("error").Inc()
		c.logger.Error("device update failed",
			"device_id", req.Device.DeviceID,
			"characteristic", string(req.Kind),
			"value", req.Value,
			"error", e.err)
	} else {
		updatesTotal.WithLabelValues("ok").Inc()
		c.logger.Info("device updated",
			"device_id", req.Device.DeviceID,
			"characteristic", string(req.Kind),
			"value", req.Value)
	}
	c.complete(e.op, Result{Value: req.Value, OK: true})
}

// startDisplayUnits pushes the account preference. Nothing waits for it.
func (c *Coordinator) startDisplayUnits(useFahrenheit bool) {
	token := c.session.Token()

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.updateTimeout)
		defer cancel()
		if err := c.remote.UpdateDisplayUnits(ctx, token, useFahrenheit); err != nil {
			c.logger.Error("display units update failed", "use_fahrenheit", useFahrenheit, "error", err)
		}
	}()
}

// complete invokes the callback once. A panicking callback is logged and
// does not take the loop down.
func (c *Coordinator) complete(op *pending, r Result) {
	if op.done {
		return
	}
	op.done = true

	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("callback panicked",
				"device_id", op.req.Device.DeviceID,
				"characteristic", string(op.req.Kind),
				"panic", fmt.Sprint(rec))
		}
	}()
	op.callback(r)
}
