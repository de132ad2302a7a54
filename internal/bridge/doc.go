// Package bridge exposes MELCloud air conditioners as accessories over MQTT.
//
// Hosts publish characteristic reads to {prefix}/request/{device_id} and
// writes to {prefix}/command/{device_id}. Every message is answered with
// exactly one ResponseMessage on {prefix}/response/{request_id}; when the
// coordinator could not obtain a snapshot the response carries
// available=false and no value.
//
// The bridge also publishes, all retained:
//   - the accessory list on {prefix}/discovery at startup
//   - periodic HealthMessage updates on {prefix}/health
//   - every fetched snapshot on {prefix}/state/{device_id}
package bridge
