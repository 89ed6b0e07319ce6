// Package domain defines the marketplace entities observed by the lifecycle
// engine: user profiles, calls, reviews, payments, payouts, and the events
// derived from them. Entities are owned and mutated by other subsystems; this
// engine only reads them and reacts to their state changes.
package domain
