// ABOUTME: Package legacy imports state from the earlier file-based deployment

// Package legacy migrates the operator map, session map, authorized client
// records and the known-phone registry from flat files into a store.
//
// The JSON files are read through a JSONC filter, so hand-edited files
// with comments or trailing commas still load. Client record keys the
// store does not model are preserved in the record's Extra map.
package legacy
