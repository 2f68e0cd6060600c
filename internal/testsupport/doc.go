// Package testsupport provides shared helpers for package tests: seeded
// configs, fake audio inputs, and stubbed external binaries.
package testsupport
