// Package history keeps the conversation log that operators and admins read back.
package history
