// Package session owns the authoritative registry of live-editing sessions.
//
// Each session is an isolated directory tree under the sessions root:
//
//	{root}/{sessionId}/workspace    editable source, copied from the template
//	{root}/{sessionId}/dist         web build output
//	{root}/{sessionId}/mobile-dist  one bundle + source map per mobile platform
//
// Memory is the fast path and disk is the source of truth: lookups fall back
// to filesystem rehydration, and listing prunes records whose directories
// disappeared out-of-band.
package session
