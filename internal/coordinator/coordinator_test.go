package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/characteristic"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

const testTimeout = 5 * time.Second

// fakeRemote is an in-memory MELCloud. When gate is non-nil every fetch
// waits for a receive from it (or for its context to end).
type fakeRemote struct {
	mu        sync.Mutex
	snaps     map[int]*melcloud.Snapshot
	gate      chan struct{}
	fetchErr  error
	updateErr error

	fetchOrder []int
	active     int
	maxActive  int
	updates    []*melcloud.Snapshot
	units      chan bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		snaps: map[int]*melcloud.Snapshot{
			1: {DeviceID: 1, Power: true, OperationMode: melcloud.ModeHeat, RoomTemperature: 20, SetTemperature: 21, SetFanSpeed: 1, NumberOfFanSpeeds: 5, VaneHorizontal: 3, VaneVertical: 3},
			2: {DeviceID: 2, Power: false, OperationMode: melcloud.ModeCool, RoomTemperature: 25, SetTemperature: 23, NumberOfFanSpeeds: 3},
			3: {DeviceID: 3, Power: true, OperationMode: melcloud.ModeCool, RoomTemperature: 26, SetTemperature: 22, NumberOfFanSpeeds: 4},
		},
		units: make(chan bool, 4),
	}
}

func (f *fakeRemote) FetchDevice(ctx context.Context, token string, deviceID, buildingID int) (*melcloud.Snapshot, error) {
	f.mu.Lock()
	f.fetchOrder = append(f.fetchOrder, deviceID)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	snap, ok := f.snaps[deviceID]
	if !ok {
		return nil, melcloud.ErrMalformedResponse
	}
	return snap.Clone(), nil
}

func (f *fakeRemote) UpdateDevice(ctx context.Context, token string, snap *melcloud.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, snap.Clone())
	return f.updateErr
}

func (f *fakeRemote) UpdateDisplayUnits(ctx context.Context, token string, useFahrenheit bool) error {
	f.units <- useFahrenheit
	return nil
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchOrder)
}

func (f *fakeRemote) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type recordingObserver struct {
	mu      sync.Mutex
	fetched []int
	writes  []WriteRecord
}

func (o *recordingObserver) SnapshotFetched(device Target, snap *melcloud.Snapshot) {
	o.mu.Lock()
	o.fetched = append(o.fetched, device.DeviceID)
	o.mu.Unlock()
}

func (o *recordingObserver) WriteCompleted(rec WriteRecord) {
	o.mu.Lock()
	o.writes = append(o.writes, rec)
	o.mu.Unlock()
}

// waitFor polls until cond holds under the observer lock. Observers run
// after the callback, so tests cannot read them straight away.
func (o *recordingObserver) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		o.mu.Lock()
		ok := cond()
		o.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("observer was never notified")
}

func newTestCoordinator(t *testing.T, remote *fakeRemote, opts Options) *Coordinator {
	t.Helper()
	opts.Remote = remote
	if opts.Session == nil {
		opts.Session = melcloud.NewSession("tok", false)
	}
	opts.Mapper = characteristic.NewMapper(characteristic.HomeKit())

	c, err := NewCoordinator(opts)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func device(id int) Target {
	return Target{DeviceID: id, BuildingID: 100}
}

func read(t *testing.T, c *Coordinator, id int, kind characteristic.Kind) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	r, err := c.Read(ctx, device(id), kind)
	if err != nil {
		t.Fatalf("Read(%d, %s): %v", id, kind, err)
	}
	return r
}

func write(t *testing.T, c *Coordinator, id int, kind characteristic.Kind, v float64) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	r, err := c.Write(ctx, device(id), kind, v)
	if err != nil {
		t.Fatalf("Write(%d, %s, %v): %v", id, kind, v, err)
	}
	return r
}

// waitForQueue polls until the coordinator reports depth queued requests.
func waitForQueue(t *testing.T, c *Coordinator, depth int) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		s, err := c.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if s.QueueDepth == depth {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue depth never reached %d", depth)
}

// collector gathers callback results in completion order.
type collector struct {
	mu      sync.Mutex
	order   []int
	results map[int]Result
	wg      sync.WaitGroup
}

func newCollector(n int) *collector {
	c := &collector{results: make(map[int]Result)}
	c.wg.Add(n)
	return c
}

func (c *collector) callback(i int) Callback {
	return func(r Result) {
		c.mu.Lock()
		c.order = append(c.order, i)
		c.results[i] = r
		c.mu.Unlock()
		c.wg.Done()
	}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("callbacks did not all complete")
	}
}

func TestNewCoordinator_Validation(t *testing.T) {
	mapper := characteristic.NewMapper(characteristic.HomeKit())
	session := melcloud.NewSession("tok", false)

	tests := []struct {
		name string
		opts Options
	}{
		{"missing remote", Options{Session: session, Mapper: mapper}},
		{"missing session", Options{Remote: newFakeRemote(), Mapper: mapper}},
		{"missing mapper", Options{Remote: newFakeRemote(), Session: session}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCoordinator(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCoordinator_StartTwice(t *testing.T) {
	c := newTestCoordinator(t, newFakeRemote(), Options{})
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestCoordinator_ColdReadFetches(t *testing.T) {
	remote := newFakeRemote()
	obs := &recordingObserver{}
	c := newTestCoordinator(t, remote, Options{Observer: obs})

	r := read(t, c, 1, characteristic.CurrentTemperature)
	if !r.OK || r.Value != 20 {
		t.Fatalf("Read = %+v, want 20", r)
	}
	if n := remote.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	obs.waitFor(t, func() bool { return len(obs.fetched) > 0 })
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.fetched) != 1 || obs.fetched[0] != 1 {
		t.Errorf("observer fetched = %v, want [1]", obs.fetched)
	}
}

func TestCoordinator_WarmCacheDoesNotFetch(t *testing.T) {
	remote := newFakeRemote()
	c := newTestCoordinator(t, remote, Options{})

	read(t, c, 1, characteristic.CurrentTemperature)
	for _, kind := range characteristic.AllKinds {
		if r := read(t, c, 1, kind); !r.OK {
			t.Errorf("Read(%s) not OK", kind)
		}
	}

	if n := remote.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestCoordinator_TTL(t *testing.T) {
	remote := newFakeRemote()
	clock := newFakeClock()
	c := newTestCoordinator(t, remote, Options{Clock: clock.Now, CacheTTL: 60 * time.Second})

	read(t, c, 1, characteristic.CurrentTemperature)

	clock.Advance(59 * time.Second)
	read(t, c, 1, characteristic.CurrentTemperature)
	if n := remote.fetchCount(); n != 1 {
		t.Fatalf("fetches before TTL = %d, want 1", n)
	}

	clock.Advance(time.Second)
	read(t, c, 1, characteristic.CurrentTemperature)
	if n := remote.fetchCount(); n != 2 {
		t.Errorf("fetches after TTL = %d, want 2", n)
	}
}

func TestCoordinator_SingleFlightAcrossDevices(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, Options{})

	const perDevice = 10
	total := perDevice * 3
	col := newCollector(total)

	var submitters sync.WaitGroup
	for i := 0; i < total; i++ {
		submitters.Add(1)
		go func(i int) {
			defer submitters.Done()
			c.Submit(Request{Device: device(i%3 + 1), Kind: characteristic.CurrentTemperature}, col.callback(i))
		}(i)
	}
	submitters.Wait()

	waitForQueue(t, c, total-1)
	close(remote.gate)
	col.wait(t)

	remote.mu.Lock()
	maxActive, fetches := remote.maxActive, len(remote.fetchOrder)
	remote.mu.Unlock()

	if maxActive != 1 {
		t.Errorf("max concurrent fetches = %d, want 1", maxActive)
	}
	if fetches != 3 {
		t.Errorf("fetches = %d, want 3 (one per device)", fetches)
	}

	want := map[int]float64{1: 20, 2: 25, 3: 26}
	for i := 0; i < total; i++ {
		r := col.results[i]
		if !r.OK || r.Value != want[i%3+1] {
			t.Errorf("result %d = %+v, want %v", i, r, want[i%3+1])
		}
	}
}

func TestCoordinator_QueuedRequestsRunInOrder(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, Options{})

	const n = 8
	col := newCollector(n)
	for i := 0; i < n; i++ {
		c.Submit(Request{Device: device(1), Kind: characteristic.TargetTemperature}, col.callback(i))
	}

	waitForQueue(t, c, n-1)
	close(remote.gate)
	col.wait(t)

	for i, got := range col.order {
		if got != i {
			t.Fatalf("completion order = %v, want ascending", col.order)
		}
	}
}

func TestCoordinator_FetchesFollowSubmissionOrder(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, Options{})

	ids := []int{2, 3, 2, 1, 3}
	col := newCollector(len(ids))
	for i, id := range ids {
		c.Submit(Request{Device: device(id), Kind: characteristic.CurrentTemperature}, col.callback(i))
	}

	waitForQueue(t, c, len(ids)-1)
	close(remote.gate)
	col.wait(t)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	want := []int{2, 3, 1}
	if len(remote.fetchOrder) != len(want) {
		t.Fatalf("fetch order = %v, want %v", remote.fetchOrder, want)
	}
	for i := range want {
		if remote.fetchOrder[i] != want[i] {
			t.Fatalf("fetch order = %v, want %v", remote.fetchOrder, want)
		}
	}
}

func TestCoordinator_QueuedRequestsCompleteInOrderAcrossDevices(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, Options{})

	// Devices 2 and 3 are warm by the time their second request is
	// replayed; they must still wait for the fetches queued ahead of them.
	ids := []int{2, 3, 2, 1, 3}
	col := newCollector(len(ids))
	for i, id := range ids {
		c.Submit(Request{Device: device(id), Kind: characteristic.CurrentTemperature}, col.callback(i))
	}

	waitForQueue(t, c, len(ids)-1)
	close(remote.gate)
	col.wait(t)

	for i, got := range col.order {
		if got != i {
			t.Fatalf("completion order = %v, want [0 1 2 3 4]", col.order)
		}
	}
}

// blockingObserver holds every notification until release is closed.
type blockingObserver struct {
	release chan struct{}
	entered chan struct{}
}

func (o *blockingObserver) SnapshotFetched(Target, *melcloud.Snapshot) {
	o.entered <- struct{}{}
	<-o.release
}

func (o *blockingObserver) WriteCompleted(WriteRecord) {
	o.entered <- struct{}{}
	<-o.release
}

func TestCoordinator_SlowObserverDoesNotHoldFetchSlot(t *testing.T) {
	remote := newFakeRemote()
	obs := &blockingObserver{release: make(chan struct{}), entered: make(chan struct{}, 8)}
	c := newTestCoordinator(t, remote, Options{Observer: obs})
	defer close(obs.release)

	if r := read(t, c, 1, characteristic.CurrentTemperature); !r.OK {
		t.Fatalf("Read(1) = %+v", r)
	}
	<-obs.entered

	// The first observer call is still blocked.
	start := time.Now()
	if r := read(t, c, 2, characteristic.CurrentTemperature); !r.OK || r.Value != 25 {
		t.Fatalf("Read(2) = %+v", r)
	}
	if r := write(t, c, 1, characteristic.TargetTemperature, 18); !r.OK {
		t.Fatalf("Write(1) = %+v", r)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("requests took %v behind a blocked observer", elapsed)
	}

	s, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0", s.InFlight)
	}
}

func TestCoordinator_FetchFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.fetchErr = melcloud.ErrMalformedResponse
	c := newTestCoordinator(t, remote, Options{})

	if r := read(t, c, 1, characteristic.CurrentTemperature); r.OK {
		t.Fatalf("Read after failed fetch = %+v, want no value", r)
	}

	remote.mu.Lock()
	remote.fetchErr = nil
	remote.mu.Unlock()

	if r := read(t, c, 1, characteristic.CurrentTemperature); !r.OK || r.Value != 20 {
		t.Fatalf("Read after recovery = %+v, want 20", r)
	}
	if n := remote.fetchCount(); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestCoordinator_FetchFailureDrainsQueue(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	remote.fetchErr = errors.New("connection reset")
	c := newTestCoordinator(t, remote, Options{})

	col := newCollector(3)
	for i := 0; i < 3; i++ {
		c.Submit(Request{Device: device(1), Kind: characteristic.CurrentTemperature}, col.callback(i))
	}
	waitForQueue(t, c, 2)
	close(remote.gate)
	col.wait(t)

	for i, r := range col.results {
		if r.OK {
			t.Errorf("result %d = %+v, want no value", i, r)
		}
	}
	if n := remote.fetchCount(); n != 3 {
		t.Errorf("fetches = %d, want 3", n)
	}

	s, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.InFlight != 0 || s.QueueDepth != 0 || s.CachedDevices != 0 {
		t.Errorf("Stats = %+v, want idle and empty", s)
	}
}

func TestCoordinator_WriteUpdatesDevice(t *testing.T) {
	remote := newFakeRemote()
	obs := &recordingObserver{}
	c := newTestCoordinator(t, remote, Options{Observer: obs})

	r := write(t, c, 1, characteristic.TargetTemperature, 19)
	if !r.OK || r.Value != 19 {
		t.Fatalf("Write = %+v", r)
	}

	remote.mu.Lock()
	if len(remote.updates) != 1 {
		remote.mu.Unlock()
		t.Fatalf("updates = %d, want 1", len(remote.updates))
	}
	sent := remote.updates[0]
	remote.mu.Unlock()

	if sent.SetTemperature != 19 || sent.EffectiveFlags != melcloud.FlagSetTemperature {
		t.Errorf("sent = %+v", sent)
	}

	if got := read(t, c, 1, characteristic.TargetTemperature); got.Value != 19 {
		t.Errorf("read after write = %v, want 19", got.Value)
	}
	if n := remote.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	obs.waitFor(t, func() bool { return len(obs.writes) > 0 })
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.writes) != 1 || obs.writes[0].Flags != melcloud.FlagSetTemperature || obs.writes[0].Err != nil {
		t.Errorf("observer writes = %+v", obs.writes)
	}
}

func TestCoordinator_WriteFailureStillCompletes(t *testing.T) {
	remote := newFakeRemote()
	remote.updateErr = errors.New("503")
	obs := &recordingObserver{}
	c := newTestCoordinator(t, remote, Options{Observer: obs})

	r := write(t, c, 1, characteristic.RotationSpeed, 100)
	if !r.OK {
		t.Errorf("Write = %+v, want completed", r)
	}

	obs.waitFor(t, func() bool { return len(obs.writes) > 0 })
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.writes) != 1 || obs.writes[0].Err == nil {
		t.Errorf("observer writes = %+v, want one failed write", obs.writes)
	}
}

func TestCoordinator_NoopWrites(t *testing.T) {
	remote := newFakeRemote()
	c := newTestCoordinator(t, remote, Options{})

	write(t, c, 1, characteristic.TargetHeatingCoolingState, 9)
	write(t, c, 1, characteristic.CurrentTemperature, 30)
	write(t, c, 1, characteristic.Kind("manufacturer"), 1)

	if n := remote.updateCount(); n != 0 {
		t.Errorf("updates = %d, want 0", n)
	}
}

func TestCoordinator_DisplayUnits(t *testing.T) {
	remote := newFakeRemote()
	session := melcloud.NewSession("tok", false)
	c := newTestCoordinator(t, remote, Options{Session: session})

	if r := read(t, c, 1, characteristic.TemperatureDisplayUnits); r.Value != 0 {
		t.Fatalf("initial units = %v, want 0", r.Value)
	}

	write(t, c, 1, characteristic.TemperatureDisplayUnits, 1)

	select {
	case v := <-remote.units:
		if !v {
			t.Error("UpdateDisplayUnits(false), want true")
		}
	case <-time.After(testTimeout):
		t.Fatal("UpdateDisplayUnits was not called")
	}

	if !session.UseFahrenheit() {
		t.Error("session preference not updated")
	}
	if r := read(t, c, 1, characteristic.TemperatureDisplayUnits); r.Value != 1 {
		t.Errorf("units after write = %v, want 1", r.Value)
	}
	if n := remote.updateCount(); n != 0 {
		t.Errorf("device updates = %d, want 0", n)
	}
}

func TestCoordinator_ReentrantSubmit(t *testing.T) {
	remote := newFakeRemote()
	c := newTestCoordinator(t, remote, Options{})

	done := make(chan Result, 1)
	c.Submit(Request{Device: device(1), Kind: characteristic.CurrentTemperature}, func(Result) {
		c.Submit(Request{Device: device(1), Kind: characteristic.TargetTemperature}, func(r Result) {
			done <- r
		})
	})

	select {
	case r := <-done:
		if !r.OK || r.Value != 21 {
			t.Errorf("nested result = %+v, want 21", r)
		}
	case <-time.After(testTimeout):
		t.Fatal("nested submit never completed")
	}
}

func TestCoordinator_CallbackPanicDoesNotStopLoop(t *testing.T) {
	c := newTestCoordinator(t, newFakeRemote(), Options{})

	c.Submit(Request{Device: device(1), Kind: characteristic.CurrentTemperature}, func(Result) {
		panic("boom")
	})

	if r := read(t, c, 1, characteristic.CurrentTemperature); !r.OK {
		t.Errorf("Read after panic = %+v", r)
	}
}

func TestCoordinator_StopCompletesPending(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})

	c, err := NewCoordinator(Options{
		Remote:  remote,
		Session: melcloud.NewSession("tok", false),
		Mapper:  characteristic.NewMapper(characteristic.HomeKit()),
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	col := newCollector(4)
	for i := 0; i < 4; i++ {
		c.Submit(Request{Device: device(i%2 + 1), Kind: characteristic.CurrentTemperature}, col.callback(i))
	}
	waitForQueue(t, c, 3)

	c.Stop()
	col.wait(t)

	for i, r := range col.results {
		if r.OK {
			t.Errorf("result %d = %+v, want no value", i, r)
		}
	}

	after := newCollector(1)
	c.Submit(Request{Device: device(1), Kind: characteristic.CurrentTemperature}, after.callback(0))
	after.wait(t)
	if after.results[0].OK {
		t.Error("Submit after Stop returned a value")
	}

	if _, err := c.Stats(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Stats after Stop = %v, want ErrStopped", err)
	}
}

func TestCoordinator_StopBeforeStart(t *testing.T) {
	c, err := NewCoordinator(Options{
		Remote:  newFakeRemote(),
		Session: melcloud.NewSession("tok", false),
		Mapper:  characteristic.NewMapper(characteristic.HomeKit()),
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	col := newCollector(1)
	c.Submit(Request{Device: device(1), Kind: characteristic.CurrentTemperature}, col.callback(0))
	c.Stop()
	col.wait(t)

	if col.results[0].OK {
		t.Error("pending request completed with a value")
	}
	if err := c.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
}

func TestCoordinator_ReadHonoursContext(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Read(ctx, device(1), characteristic.CurrentTemperature); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read = %v, want DeadlineExceeded", err)
	}
	close(remote.gate)
}

func TestCoordinator_FetchTimeoutFreesSlot(t *testing.T) {
	remote := newFakeRemote()
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, Options{FetchTimeout: 20 * time.Millisecond})

	if r := read(t, c, 1, characteristic.CurrentTemperature); r.OK {
		t.Fatalf("Read = %+v, want no value after timeout", r)
	}

	close(remote.gate)
	if r := read(t, c, 1, characteristic.CurrentTemperature); !r.OK {
		t.Errorf("Read after timeout = %+v, want value", r)
	}
}
