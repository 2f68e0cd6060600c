// Package notifications delivers conversion run events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled, so the pipeline can emit milestones unconditionally without
// duplicating HTTP glue.
//
// Extend this package if you need alternative transports; pipeline code
// depends only on the Service interface.
package notifications
