package compiler

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Error is returned when compilation produced error diagnostics.
type Error struct {
	Diags hcl.Diagnostics
}

func (e *Error) Error() string {
	var msgs []string
	for _, d := range e.Diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		if d.Subject != nil && d.Subject.Filename != "" {
			msg = fmt.Sprintf("%s: %s", d.Subject, msg)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 1 {
		return "compile error: " + msgs[0]
	}
	return fmt.Sprintf("%d compile errors:\n- %s", len(msgs), strings.Join(msgs, "\n- "))
}

func errorf(rng hcl.Range, summary, format string, args ...any) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  rng.Ptr(),
	}
}

func warnf(rng hcl.Range, summary, format string, args ...any) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagWarning,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  rng.Ptr(),
	}
}
