// Package clients owns authorized client records and the known-client check.
package clients
