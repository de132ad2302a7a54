package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "melcloud"

// Topic categories below the prefix.
const (
	CategoryRequest   = "request"
	CategoryCommand   = "command"
	CategoryResponse  = "response"
	CategoryState     = "state"
	CategoryDiscovery = "discovery"
	CategoryHealth    = "health"
)

// Topics builds bridge topics under a common prefix.
//
//	topics := mqtt.NewTopics("melcloud")
//	topics.State("123456") // "melcloud/state/123456"
type Topics struct {
	prefix string
}

// NewTopics returns topic builders rooted at prefix. Trailing slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root every topic is built under.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

func (t Topics) join(parts ...string) string {
	return t.Prefix() + "/" + strings.Join(parts, "/")
}

// Request is where characteristic reads for a device arrive.
func (t Topics) Request(deviceID string) string {
	return t.join(CategoryRequest, deviceID)
}

// Command is where characteristic writes for a device arrive.
func (t Topics) Command(deviceID string) string {
	return t.join(CategoryCommand, deviceID)
}

// Response carries the answer to a single request or command.
func (t Topics) Response(requestID string) string {
	return t.join(CategoryResponse, requestID)
}

// State carries the latest snapshot of a device (retained).
func (t Topics) State(deviceID string) string {
	return t.join(CategoryState, deviceID)
}

// Discovery lists the accessories this bridge exposes (retained).
func (t Topics) Discovery() string {
	return t.join(CategoryDiscovery)
}

// Health carries bridge status, including the Last Will (retained).
func (t Topics) Health() string {
	return t.join(CategoryHealth)
}

// RequestWildcard matches reads for every device.
func (t Topics) RequestWildcard() string {
	return t.join(CategoryRequest, "+")
}

// CommandWildcard matches writes for every device.
func (t Topics) CommandWildcard() string {
	return t.join(CategoryCommand, "+")
}

// Parse splits a topic into its category and trailing identifier.
// It reports false for topics outside the prefix or with extra levels.
func (t Topics) Parse(topic string) (category, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/")
	if !found {
		return "", "", false
	}
	category, id, _ = strings.Cut(rest, "/")
	if category == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return category, id, true
}
