package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// RequestMessage asks for the current value of a characteristic.
// Topic: {prefix}/request/{device_id}
type RequestMessage struct {
	// RequestID correlates the response. Generated when empty.
	RequestID string `json:"request_id"`

	Timestamp time.Time `json:"timestamp"`

	// Characteristic is a kind name such as "target_temperature".
	Characteristic string `json:"characteristic"`
}

// CommandMessage sets a characteristic.
// Topic: {prefix}/command/{device_id}
type CommandMessage struct {
	// ID correlates the response. Generated when empty.
	ID string `json:"id"`

	Timestamp      time.Time `json:"timestamp"`
	Characteristic string    `json:"characteristic"`
	Value          *float64  `json:"value"`

	// Source indicates where the command originated, e.g. "homekit".
	Source string `json:"source,omitempty"`
}

// ResponseMessage answers one request or command.
// Topic: {prefix}/response/{request_id}
type ResponseMessage struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	DeviceID       int       `json:"device_id"`
	Characteristic string    `json:"characteristic"`

	// Operation is "get" or "set".
	Operation string `json:"operation"`

	// Available is false when no value could be produced.
	Available bool     `json:"available"`
	Value     *float64 `json:"value,omitempty"`

	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError describes why a message was rejected.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ResponseError.
const (
	ErrCodeInvalidPayload        = "INVALID_PAYLOAD"
	ErrCodeInvalidDevice         = "INVALID_DEVICE"
	ErrCodeNotConfigured         = "NOT_CONFIGURED"
	ErrCodeUnknownCharacteristic = "UNKNOWN_CHARACTERISTIC"
	ErrCodeReadOnly              = "READ_ONLY"
	ErrCodeMissingValue          = "MISSING_VALUE"
	ErrCodeBridgeStopping        = "BRIDGE_STOPPING"
)

// StateMessage carries the latest snapshot of a device.
// Topic: {prefix}/state/{device_id}, retained.
type StateMessage struct {
	DeviceID   int                `json:"device_id"`
	BuildingID int                `json:"building_id"`
	Timestamp  time.Time          `json:"timestamp"`
	Snapshot   *melcloud.Snapshot `json:"snapshot"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: {prefix}/health, retained.
type HealthMessage struct {
	Bridge         string             `json:"bridge"`
	Timestamp      time.Time          `json:"timestamp"`
	Status         HealthStatus       `json:"status"`
	Version        string             `json:"version"`
	UptimeSeconds  int64              `json:"uptime_seconds"`
	DevicesManaged int                `json:"devices_managed"`
	Coordinator    *coordinator.Stats `json:"coordinator,omitempty"`
	Reason         string             `json:"reason,omitempty"`
}

// DiscoveryMessage lists the accessories this bridge exposes.
// Topic: {prefix}/discovery, retained.
type DiscoveryMessage struct {
	Timestamp   time.Time             `json:"timestamp"`
	Bridge      string                `json:"bridge"`
	Accessories []DiscoveredAccessory `json:"accessories"`
}

// DiscoveredAccessory describes one accessory and its characteristics.
type DiscoveredAccessory struct {
	ID              int      `json:"id"`
	BuildingID      int      `json:"building_id"`
	Name            string   `json:"name"`
	Manufacturer    string   `json:"manufacturer"`
	Model           string   `json:"model"`
	SerialNumber    string   `json:"serial_number"`
	Characteristics []string `json:"characteristics"`
	Writable        []string `json:"writable"`
}
