package coordinator

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/characteristic"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// Target identifies a unit. BuildingID is only needed to fetch it.
type Target struct {
	DeviceID   int
	BuildingID int
}

// Request is one characteristic read or write.
type Request struct {
	Device Target
	Kind   characteristic.Kind
	Op     characteristic.Operation

	// Value is the value to write. Ignored for reads.
	Value float64
}

// Result is delivered to a request's callback.
type Result struct {
	// Value is the characteristic value for reads and the written value
	// for writes.
	Value float64

	// OK is false when no snapshot could be obtained to serve the
	// request, i.e. the fetch failed or the coordinator stopped.
	OK bool
}

// Callback receives the result of a request. It runs on the coordinator
// goroutine and must not block.
type Callback func(Result)

// Remote is the MELCloud API surface the coordinator needs.
// *melcloud.Client satisfies it.
type Remote interface {
	FetchDevice(ctx context.Context, token string, deviceID, buildingID int) (*melcloud.Snapshot, error)
	UpdateDevice(ctx context.Context, token string, snap *melcloud.Snapshot) error
	UpdateDisplayUnits(ctx context.Context, token string, useFahrenheit bool) error
}

// Session provides the credentials and account preferences.
// *melcloud.Session satisfies it.
type Session interface {
	Token() string
	UseFahrenheit() bool
	SetUseFahrenheit(bool)
}

// WriteRecord describes a device update after MELCloud answered it.
type WriteRecord struct {
	Device Target
	Kind   characteristic.Kind
	Value  float64
	Flags  melcloud.Flags
	Err    error
	At     time.Time
}

// Observer is notified of fetched snapshots and completed writes.
// Methods are called from worker goroutines, never from the loop.
type Observer interface {
	SnapshotFetched(device Target, snap *melcloud.Snapshot)
	WriteCompleted(rec WriteRecord)
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	InFlight      int `json:"in_flight"`
	QueueDepth    int `json:"queue_depth"`
	CachedDevices int `json:"cached_devices"`
}

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopObserver struct{}

func (noopObserver) SnapshotFetched(Target, *melcloud.Snapshot) {}
func (noopObserver) WriteCompleted(WriteRecord)                 {}
