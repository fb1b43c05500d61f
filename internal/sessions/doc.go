// Package sessions owns operator availability and the client to operator
// session map.
//
// Store is a write-through cache over store.OperatorStore: every mutation
// is persisted first and applied to memory only when the write succeeds.
// Reload discards the cache and reads everything back.
//
// Assignment picks the available operator with the fewest sessions; ties
// go to the lowest chat id. ResolveOrAssign keeps a client on its operator
// while that operator stays available and moves it otherwise.
package sessions
