// Package melcloud is a client for the MELCloud web API used by Mitsubishi
// Electric air-to-air units.
//
// The client covers the handful of endpoints the bridge needs:
//
//   - Login/ClientLogin: exchange credentials for a context key
//   - User/ListDevices: walk the building tree to discover units
//   - Device/Get: fetch the full state snapshot of one unit
//   - Device/SetAta: push a modified snapshot back, driven by EffectiveFlags
//   - User/UpdateApplicationOptions: account-wide display preferences
//
// Every authenticated request carries the context key in the
// X-MitsContextKey header. MELCloud answers some failures with an HTML
// error page and a 200 status; those bodies are reported as
// ErrMalformedResponse.
//
// # Snapshots
//
// A Snapshot holds the fields the bridge reads and writes plus every other
// field the API returned. Unknown fields survive a decode/encode round trip
// so that an update sends the device record back exactly as it was received,
// apart from the fields that were changed.
package melcloud
