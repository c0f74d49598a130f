//go:build !windows && !darwin

package canon

// Linux filesystems are case-sensitive.
const caseInsensitive = false
