package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/agentgrid/internal/ctxlog"
)

// ValidateRegistry checks that every registered prototype can actually be
// executed and that primitives declare their arguments consistently.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.OperatorNames() {
		for _, p := range r.operators[name] {
			if p.Fn == nil && p.Lazy == nil {
				errs = append(errs, fmt.Sprintf("operator '%s': no evaluator", p))
			}
			if p.ReturnType == nil && p.ReturnFunc == nil {
				logger.Warn("Operator has no declared return type, results are typed unknown.", "operator", p.String())
			}
			for i, t := range p.Signature {
				if t == nil {
					errs = append(errs, fmt.Sprintf("operator '%s': parameter %d has no type", p.Name, i))
				}
			}
		}
	}

	for _, name := range r.PrimitiveNames() {
		p := r.primitives[name]
		if p.Fn == nil {
			errs = append(errs, fmt.Sprintf("primitive '%s': no function", name))
		}
		seen := make(map[string]struct{}, len(p.Args))
		for _, a := range p.Args {
			if _, dup := seen[a.Name]; dup {
				errs = append(errs, fmt.Sprintf("primitive '%s': argument '%s' declared twice", name, a.Name))
			}
			seen[a.Name] = struct{}{}
		}
		if r.HasOperator(name) {
			errs = append(errs, fmt.Sprintf("primitive '%s' shadows an operator of the same name", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
