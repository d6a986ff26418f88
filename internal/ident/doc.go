// Package ident provides the compact identifiers used for users, tasks, and
// groups.
//
// Identifiers are 12 bytes, embed a creation timestamp, a machine/process
// discriminator, and a monotonic counter, so raw-byte comparison orders them
// chronologically. They never repeat within a process lifetime. The zero value
// is reserved and means "absent" (for example a task with no owning group).
package ident
