// Package dedupe provides a time-windowed set used to drop transport
// updates that are delivered more than once.
package dedupe
