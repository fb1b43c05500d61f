// ABOUTME: Package telegram adapts the Telegram Bot API to the relay

// Package telegram runs the long-polling loop and implements relay.Transport.
package telegram
