// Package policy provides optional declarative rules deciding which task
// kinds may be submitted.
package policy
