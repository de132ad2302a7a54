// Package characteristic translates between MELCloud device snapshots and the
// abstract characteristic values an accessory host works with.
//
// Reads turn a snapshot into a single number. Writes return a modified copy of
// the snapshot together with the EffectiveFlags bits naming what changed, or
// say that nothing needs to be sent. The numeric encoding of heating/cooling
// states and display units is supplied as Conventions, so the mapper itself
// holds no host-specific constants.
package characteristic
