// Package device keeps the set of MELCloud air conditioners this bridge
// exposes as accessories.
//
// The registry is filled from the MELCloud building tree at startup and
// can be refreshed later. Lookups return copies, so callers may modify
// what they get back.
package device
