// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal task models into transport-friendly DTOs so
// clients never couple to the storage representation.
//
// DTOs use camelCase JSON tags. Identifiers are exposed as their string
// encoding, statuses and decisions as lowercase words, and timestamps as unix
// milliseconds matching the stored values. Payloads pass through as raw bytes
// and are base64 in JSON.
package api
