package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/lightspeed-messenger/globals"
)

// Policy decides whether a new message is accepted. The zero value (and a nil *Policy) accepts everything.
type Policy struct {
	source string
	prog   *vm.Program
}

// NewPolicy compiles a boolean expr expression over Env, f.e. `len(Body) <= 4096 || HasVoice`.
func NewPolicy(source string) (*Policy, error) {
	if source == "" {
		return &Policy{}, nil
	}
	prog, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("could not compile message policy: %w", err)
	}
	return &Policy{source: source, prog: prog}, nil
}

// Allow runs the policy. A runtime error rejects the message.
func (p *Policy) Allow(env Env) bool {
	if p == nil || p.prog == nil {
		return true
	}
	res, err := expr.Run(p.prog, env)
	if err != nil {
		globals.AppLogger.Error("could not run message policy", "policy", p.source, "error", err)
		return false
	}
	if bRes, ok := res.(bool); ok && bRes {
		return true
	}
	return false
}

func (p *Policy) String() string {
	if p == nil {
		return ""
	}
	return p.source
}
