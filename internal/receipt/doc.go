// Package receipt persists per-input proof-of-conversion records beside each
// fragment. A valid receipt means the fragment can be reused on a resumed
// run; a stale one forces reconversion of exactly that file.
package receipt
