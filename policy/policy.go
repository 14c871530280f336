package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/tasker/model/task"
)

// Submission modes.
const (
	ModeAsk  = "ask"  // consult Ask before every submission
	ModeAuto = "auto" // accept automatically (default)
	ModeDeny = "deny" // reject every submission
)

// ErrDenied is returned when a submission is rejected.
var ErrDenied = errors.New("policy: submission denied")

// AskFunc is invoked when Mode==ask. Returning true approves the submission.
type AskFunc func(ctx context.Context, kind string, request task.Payload, p *Policy) bool

// Policy filters submissions by kind. A nil *Policy accepts everything.
//
// List entries match case-insensitively; a trailing '*' matches by prefix.
// BlockList takes priority over AllowList, and an empty AllowList allows
// every kind.
type Policy struct {
	Mode      string
	AllowList []string
	BlockList []string
	Ask       AskFunc
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty" toml:"allow"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty" toml:"block"`
}

// Validate checks the configured mode.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch strings.ToLower(c.Mode) {
	case "", ModeAuto, ModeDeny, ModeAsk:
		return nil
	}
	return fmt.Errorf("policy: unsupported mode %q", c.Mode)
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:      p.Mode,
		AllowList: append([]string(nil), p.AllowList...),
		BlockList: append([]string(nil), p.BlockList...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy (without Ask).
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// IsAllowed evaluates AllowList / BlockList for kind.
func (p *Policy) IsAllowed(kind string) bool {
	if p == nil {
		return true
	}
	normalized := strings.ToLower(kind)
	for _, b := range p.BlockList {
		if matches(b, normalized) {
			return false
		}
	}
	if len(p.AllowList) == 0 {
		return true
	}
	for _, a := range p.AllowList {
		if matches(a, normalized) {
			return true
		}
	}
	return false
}

// Check returns an error wrapping ErrDenied when kind may not be submitted.
func (p *Policy) Check(ctx context.Context, kind string, request task.Payload) error {
	if p == nil {
		return nil
	}
	if !p.IsAllowed(kind) {
		return fmt.Errorf("%w: kind %v is not allowed", ErrDenied, kind)
	}
	switch strings.ToLower(p.Mode) {
	case ModeDeny:
		return fmt.Errorf("%w: submissions are disabled", ErrDenied)
	case ModeAsk:
		if p.Ask == nil || !p.Ask(ctx, kind, request, p) {
			return fmt.Errorf("%w: kind %v was not approved", ErrDenied, kind)
		}
	}
	return nil
}

func matches(pattern, normalized string) bool {
	pattern = strings.ToLower(pattern)
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(normalized, prefix)
	}
	return pattern == normalized
}
