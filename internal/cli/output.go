package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/vk/agentgrid/internal/experiment"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/types"
)

// PrintBatch renders batch results as a table, one row per simulation and
// one column per reported global.
func PrintBatch(w io.Writer, results []experiment.BatchResult) error {
	var globals []string
	seen := map[string]bool{}
	for _, r := range results {
		for name := range r.Outputs {
			if !seen[name] {
				seen[name] = true
				globals = append(globals, name)
			}
		}
	}
	sort.Strings(globals)

	data := [][]string{append([]string{"parameters", "replication", "seed", "cycle", "result"}, globals...)}
	for _, r := range results {
		result := "ok"
		if r.Err != nil {
			result = "failed: " + r.Err.Error()
		}
		row := []string{
			r.Key,
			strconv.Itoa(r.Replication),
			strconv.FormatUint(r.Seed, 10),
			strconv.FormatInt(r.Cycle, 10),
			result,
		}
		for _, name := range globals {
			cell := ""
			if v, ok := r.Outputs[name]; ok {
				cell = types.Format(v)
			}
			row = append(row, cell)
		}
		data = append(data, row)
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}

// PrintOperators lists every operator with its overloads, then the
// primitives.
func PrintOperators(w io.Writer, r *registry.Registry) error {
	data := [][]string{{"operator", "signatures"}}
	for _, name := range r.OperatorNames() {
		var sigs []string
		for _, p := range r.Operators(name) {
			sigs = append(sigs, p.String())
		}
		data = append(data, []string{name, strings.Join(sigs, ", ")})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nprimitives: %s\n", strings.Join(r.PrimitiveNames(), ", "))
	return err
}
