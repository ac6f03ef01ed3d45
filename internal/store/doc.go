// Package store keeps the recent history of matched events and fans new
// ones out to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: Bounded in-memory implementation of Store with pub/sub
//   - [EventRecord]: Storage representation of a matched event
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers miss updates rather than block the poll loop).
//
// Users of the eventwatch library should not need to interact with this
// package directly.
package store
