package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-melcloud/internal/characteristic"
	"github.com/nerrad567/gray-logic-melcloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-melcloud/internal/device"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

const (
	defaultHealthInterval = 30 * time.Second
	defaultRequestTimeout = 30 * time.Second
	statsTimeout          = 2 * time.Second
	publishQoS            = 1
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("bridge: already started")

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Coordinator serves characteristic reads and writes.
// *coordinator.Coordinator satisfies it.
type Coordinator interface {
	Read(ctx context.Context, device coordinator.Target, kind characteristic.Kind) (coordinator.Result, error)
	Write(ctx context.Context, device coordinator.Target, kind characteristic.Kind, value float64) (coordinator.Result, error)
	Stats(ctx context.Context) (coordinator.Stats, error)
}

// Registry resolves accessory IDs. *device.Registry satisfies it.
type Registry interface {
	GetAccessory(id int) (device.Accessory, error)
	ListAccessories() []device.Accessory
}

// Logger is the logging interface used by the bridge.
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

// Options configures a Bridge.
type Options struct {
	MQTT        MQTTClient
	Coordinator Coordinator
	Registry    Registry
	Topics      mqtt.Topics

	BridgeID string
	Version  string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// RequestTimeout bounds how long a single message waits for the
	// coordinator. Defaults to 30 seconds.
	RequestTimeout time.Duration

	Logger Logger
}

// Bridge connects MQTT hosts to the request coordinator.
type Bridge struct {
	mqtt     MQTTClient
	coord    Coordinator
	registry Registry
	topics   mqtt.Topics

	bridgeID       string
	version        string
	healthInterval time.Duration
	requestTimeout time.Duration
	startTime      time.Time
	logger         Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards started and stopped so that no handler goroutine is added
	// after Stop begins waiting.
	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewBridge validates opts and returns a bridge ready to Start.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	b := &Bridge{
		mqtt:           opts.MQTT,
		coord:          opts.Coordinator,
		registry:       opts.Registry,
		topics:         opts.Topics,
		bridgeID:       opts.BridgeID,
		version:        opts.Version,
		healthInterval: opts.HealthInterval,
		requestTimeout: opts.RequestTimeout,
		logger:         opts.Logger,
	}
	if b.healthInterval <= 0 {
		b.healthInterval = defaultHealthInterval
	}
	if b.requestTimeout <= 0 {
		b.requestTimeout = defaultRequestTimeout
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b, nil
}

// Start subscribes to request and command topics, announces the
// accessories and begins periodic health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.startTime = time.Now()
	b.mu.Unlock()

	b.publishHealth(HealthStarting, "")

	if err := b.mqtt.Subscribe(b.topics.RequestWildcard(), publishQoS, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.CommandWildcard(), publishQoS, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}

	if err := b.PublishDiscovery(); err != nil {
		b.logger.Warn("publishing discovery failed", "error", err)
	}
	b.publishHealth(HealthHealthy, "")

	b.wg.Add(1)
	go b.healthLoop(ctx)

	b.logger.Info("bridge started",
		"bridge_id", b.bridgeID,
		"accessories", len(b.registry.ListAccessories()),
	)
	return nil
}

// Stop waits for in-flight messages to be answered and publishes a
// stopping status. Safe to call more than once.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.publishHealth(HealthStopping, "shutdown")
	b.logger.Info("bridge stopped")
}

// PublishDiscovery publishes the retained accessory list.
func (b *Bridge) PublishDiscovery() error {
	accessories := b.registry.ListAccessories()

	readable := make([]string, 0, len(characteristic.AllKinds))
	writable := make([]string, 0, len(characteristic.AllKinds))
	for _, k := range characteristic.AllKinds {
		readable = append(readable, string(k))
		if k.Writable() {
			writable = append(writable, string(k))
		}
	}

	msg := DiscoveryMessage{
		Timestamp:   time.Now().UTC(),
		Bridge:      b.bridgeID,
		Accessories: make([]DiscoveredAccessory, 0, len(accessories)),
	}
	for _, a := range accessories {
		msg.Accessories = append(msg.Accessories, DiscoveredAccessory{
			ID:              a.ID,
			BuildingID:      a.BuildingID,
			Name:            a.Name,
			Manufacturer:    a.Manufacturer,
			Model:           a.Model,
			SerialNumber:    a.SerialNumber,
			Characteristics: readable,
			Writable:        writable,
		})
	}
	return b.publish(b.topics.Discovery(), msg, true)
}

// handleMessage is the MQTT handler for request and command topics.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	category, id, ok := b.topics.Parse(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	switch category {
	case mqtt.CategoryRequest:
		var req RequestMessage
		if err := json.Unmarshal(payload, &req); err != nil {
			b.reject(ResponseMessage{Operation: characteristic.Read.String()}, ErrCodeInvalidPayload, err.Error())
			return fmt.Errorf("parsing request: %w", err)
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		b.spawn(func() { b.serveRead(id, req) }, ResponseMessage{
			RequestID:      req.RequestID,
			Characteristic: req.Characteristic,
			Operation:      characteristic.Read.String(),
		})
	case mqtt.CategoryCommand:
		var cmd CommandMessage
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.reject(ResponseMessage{Operation: characteristic.Write.String()}, ErrCodeInvalidPayload, err.Error())
			return fmt.Errorf("parsing command: %w", err)
		}
		if cmd.ID == "" {
			cmd.ID = uuid.NewString()
		}
		b.spawn(func() { b.serveWrite(id, cmd) }, ResponseMessage{
			RequestID:      cmd.ID,
			Characteristic: cmd.Characteristic,
			Operation:      characteristic.Write.String(),
		})
	default:
		return fmt.Errorf("unexpected message category %q", category)
	}
	return nil
}

// spawn runs fn on its own goroutine unless the bridge is stopping, in
// which case the message is answered straight away.
func (b *Bridge) spawn(fn func(), onStopped ResponseMessage) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.reject(onStopped, ErrCodeBridgeStopping, "bridge is shutting down")
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// resolve validates the addressed accessory and characteristic.
func (b *Bridge) resolve(rawID, rawKind string, resp *ResponseMessage) (device.Accessory, characteristic.Kind, bool) {
	id, err := device.ParseID(rawID)
	if err != nil {
		b.reject(*resp, ErrCodeInvalidDevice, err.Error())
		return device.Accessory{}, "", false
	}
	resp.DeviceID = id

	accessory, err := b.registry.GetAccessory(id)
	if err != nil {
		b.reject(*resp, ErrCodeNotConfigured, err.Error())
		return device.Accessory{}, "", false
	}

	kind := characteristic.ParseKind(rawKind)
	if !kind.Known() {
		b.reject(*resp, ErrCodeUnknownCharacteristic, fmt.Sprintf("unknown characteristic %q", rawKind))
		return device.Accessory{}, "", false
	}
	resp.Characteristic = string(kind)
	return accessory, kind, true
}

func (b *Bridge) serveRead(rawID string, req RequestMessage) {
	resp := ResponseMessage{
		RequestID:      req.RequestID,
		Characteristic: req.Characteristic,
		Operation:      characteristic.Read.String(),
	}
	accessory, kind, ok := b.resolve(rawID, req.Characteristic, &resp)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.requestTimeout)
	defer cancel()

	res, err := b.coord.Read(ctx, accessory.Target(), kind)
	b.answer(resp, res, err)
}

func (b *Bridge) serveWrite(rawID string, cmd CommandMessage) {
	resp := ResponseMessage{
		RequestID:      cmd.ID,
		Characteristic: cmd.Characteristic,
		Operation:      characteristic.Write.String(),
	}
	accessory, kind, ok := b.resolve(rawID, cmd.Characteristic, &resp)
	if !ok {
		return
	}
	if !kind.Writable() {
		b.reject(resp, ErrCodeReadOnly, fmt.Sprintf("characteristic %q is read-only", kind))
		return
	}
	if cmd.Value == nil {
		b.reject(resp, ErrCodeMissingValue, "value is required")
		return
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", accessory.ID,
		"characteristic", kind,
		"value", *cmd.Value,
		"source", cmd.Source,
	)

	ctx, cancel := context.WithTimeout(b.ctx, b.requestTimeout)
	defer cancel()

	res, err := b.coord.Write(ctx, accessory.Target(), kind, *cmd.Value)
	b.answer(resp, res, err)
}

func (b *Bridge) answer(resp ResponseMessage, res coordinator.Result, err error) {
	resp.Timestamp = time.Now().UTC()
	switch {
	case err != nil:
		b.logger.Warn("coordinator did not answer",
			"request_id", resp.RequestID,
			"device_id", resp.DeviceID,
			"error", err,
		)
	case res.OK:
		v := res.Value
		resp.Available = true
		resp.Value = &v
	}

	if err := b.publish(b.topics.Response(resp.RequestID), resp, false); err != nil {
		b.logger.Error("publishing response failed", "request_id", resp.RequestID, "error", err)
	}
}

func (b *Bridge) reject(resp ResponseMessage, code, message string) {
	if resp.RequestID == "" {
		resp.RequestID = uuid.NewString()
	}
	resp.Timestamp = time.Now().UTC()
	resp.Available = false
	resp.Error = &ResponseError{Code: code, Message: message}

	b.logger.Debug("rejecting message", "request_id", resp.RequestID, "code", code, "reason", message)
	if err := b.publish(b.topics.Response(resp.RequestID), resp, false); err != nil {
		b.logger.Error("publishing response failed", "request_id", resp.RequestID, "error", err)
	}
}

// SnapshotFetched publishes the retained device state.
func (b *Bridge) SnapshotFetched(target coordinator.Target, snap *melcloud.Snapshot) {
	if snap == nil || !b.mqtt.IsConnected() {
		return
	}
	msg := StateMessage{
		DeviceID:   target.DeviceID,
		BuildingID: target.BuildingID,
		Timestamp:  time.Now().UTC(),
		Snapshot:   snap,
	}
	if err := b.publish(b.topics.State(strconv.Itoa(target.DeviceID)), msg, true); err != nil {
		b.logger.Warn("publishing state failed", "device_id", target.DeviceID, "error", err)
	}
}

// WriteCompleted logs the outcome of a device update. The new state
// follows on the next fetch.
func (b *Bridge) WriteCompleted(rec coordinator.WriteRecord) {
	if rec.Err != nil {
		b.logger.Warn("device update failed",
			"device_id", rec.Device.DeviceID,
			"characteristic", rec.Kind,
			"error", rec.Err,
		)
		return
	}
	b.logger.Debug("device updated", "device_id", rec.Device.DeviceID, "characteristic", rec.Kind)
}

func (b *Bridge) healthLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.publishHealth(HealthHealthy, "")
		}
	}
}

// publishHealth publishes status with the coordinator counters. A
// coordinator that does not answer degrades a healthy status.
func (b *Bridge) publishHealth(status HealthStatus, reason string) {
	msg := HealthMessage{
		Bridge:         b.bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        b.version,
		DevicesManaged: len(b.registry.ListAccessories()),
		Reason:         reason,
	}
	if !b.startTime.IsZero() {
		msg.UptimeSeconds = int64(time.Since(b.startTime).Seconds())
	}

	if status == HealthHealthy {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		stats, err := b.coord.Stats(ctx)
		cancel()
		if err != nil {
			msg.Status = HealthDegraded
			msg.Reason = err.Error()
		} else {
			msg.Coordinator = &stats
		}
	}

	if err := b.publish(b.topics.Health(), msg, true); err != nil {
		b.logger.Warn("publishing health failed", "error", err)
	}
}

func (b *Bridge) publish(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %T: %w", v, err)
	}
	return b.mqtt.Publish(topic, payload, publishQoS, retained)
}
