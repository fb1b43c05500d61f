// Package texts loads the message catalog.
package texts
