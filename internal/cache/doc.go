// Package cache keeps synthesized clips in memory by segment index. Clips
// behind the playback position can be packed with zstd into a cold tier.
package cache
