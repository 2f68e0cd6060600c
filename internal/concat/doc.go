// Package concat merges converted fragments into the final audiobook via
// ffmpeg's concat demuxer, stream-copying so peak memory stays constant.
package concat
