// Package resources estimates the footprint of a conversion job and checks
// disk and memory headroom against configured limits before and during a run.
package resources
