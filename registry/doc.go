// Package registry coordinates key-generation sessions for many key ids.
//
// A [Registry] owns one [keygen.Session] per key id together with the
// registered (key, epoch) pairs, the peer roster and the admin set. Every
// operation is sent to a single command loop, started with [Registry.Run],
// which applies it to a clone of the affected session, persists any durable
// change through the [Store] and only then commits the clone and publishes
// the resulting events. Concurrent callers are therefore totally ordered and
// a rejected operation changes nothing.
//
// Peers follow progress through the ordered event log, either by polling
// [Registry.Events] with the last sequence number they saw or through
// [Registry.Subscribe].
package registry
