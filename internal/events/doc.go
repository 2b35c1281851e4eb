// Package events defines the payloads published on the event bus while
// serving requests and executing plans. Subscribers (tracing, tests) match on
// the concrete type.
package events
