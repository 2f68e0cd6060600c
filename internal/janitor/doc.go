// Package janitor lists and removes abandoned job cache directories under
// the shared temp root, applying the configured retention period.
package janitor
