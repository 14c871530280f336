// Package task defines the task record: identity, lifecycle status,
// captured request/result payloads and the append-only log and progress
// sequences reported by running work.
//
// A record moves strictly along
//
//	queued -> running -> succeeded | failed | canceled
//
// Transition methods refuse any other move with ErrInvalidTransition.
package task
