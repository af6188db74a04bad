// Package api exposes a registry over JSON and HTTP.
//
// Callers are identified by an Ethereum-style address, taken from the
// subject common name of a verified TLS client certificate or, when the
// server is configured to trust it, from the X-Peer-Address header set by
// an authenticating proxy.
//
// Errors are returned as
//
//	{"error":"<kind>","message":"<detail>"}
//
// where kind is one of the stable identifiers of [registry.ErrorKind].
package api
