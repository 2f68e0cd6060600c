// Package metadata derives book tags and chapter titles from the input
// files and renders them as an FFMETADATA file for stream-copy remuxing,
// along with optional cover art discovery and resizing.
package metadata
