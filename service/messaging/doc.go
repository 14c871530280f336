// Package messaging defines the queue abstraction that feeds the worker
// pool and the event publishers.
package messaging
