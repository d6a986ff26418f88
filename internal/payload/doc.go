// Package payload encodes and decodes the opaque task-detail blob.
//
// Details are stored and transported as CBOR: a self-describing, compact
// binary encoding with the usual map/array/scalar model. Encoding is
// deterministic enough for storage but callers must not rely on byte-stable
// output across library versions. The blob is write-once at task creation and
// the approval engine never looks inside it.
package payload
