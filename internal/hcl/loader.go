package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/fsutil"
)

// Extension is the suffix of model files.
const Extension = ".hcl"

// Loader is the HCL implementation of the config.Loader interface.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new HCL model loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Files returns every file parsed so far, keyed by name. It feeds
// diagnostic writers that print source snippets.
func (l *Loader) Files() map[string]*hcl.File {
	return l.parser.Files()
}

// Load parses every .hcl file under paths and merges them into a single
// model description. Paths may be files or directories; missing paths are
// skipped. Error diagnostics are returned as an hcl.Diagnostics error.
func (l *Loader) Load(ctx context.Context, paths ...string) (*ast.Description, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, Extension)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", Extension, strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	root := &ast.Description{Keyword: "model"}
	var diags hcl.Diagnostics
	for _, file := range files {
		f, parseDiags := l.parser.ParseHCLFile(file)
		diags = append(diags, parseDiags...)
		if parseDiags.HasErrors() {
			continue
		}
		diags = append(diags, translateFile(root, f)...)
	}
	if diags.HasErrors() {
		return nil, diags
	}
	if root.Name == "" {
		root.Name = strings.TrimSuffix(filepath.Base(files[0]), Extension)
	}

	logger.Debug("HCL loading complete.", "model", root.Name, "declarations", len(root.Children))
	return root, nil
}

// Parse translates a single in-memory source file. filename only labels
// diagnostics and names the model when it has no model block.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*ast.Description, error) {
	f, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	root := &ast.Description{Keyword: "model"}
	if diags := translateFile(root, f); diags.HasErrors() {
		return nil, diags
	}
	if root.Name == "" {
		root.Name = strings.TrimSuffix(filepath.Base(filename), Extension)
	}
	ctxlog.FromContext(ctx).Debug("HCL source parsed.", "model", root.Name, "file", filename)
	return root, nil
}

// translateFile merges the top-level blocks of one file into root.
func translateFile(root *ast.Description, f *hcl.File) hcl.Diagnostics {
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported file",
			Detail:   "Only native HCL syntax is supported for models.",
			Subject:  f.Body.MissingItemRange().Ptr(),
		}}
	}

	var diags hcl.Diagnostics
	for _, attr := range sortedAttributes(body.Attributes) {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unexpected attribute",
			Detail:   fmt.Sprintf("Attribute %q must be declared inside a block.", attr.Name),
			Subject:  attr.NameRange.Ptr(),
		})
	}

	modelBlock, dupDiags := findUniqueBlock(body.Blocks, "model")
	diags = append(diags, dupDiags...)
	t := &translator{}
	for _, b := range body.Blocks {
		if b.Type != "model" {
			root.Children = append(root.Children, t.block(b))
			continue
		}
		if b != modelBlock {
			continue
		}
		diags = append(diags, mergeModel(root, b, t)...)
	}
	return append(diags, t.diags...)
}

func mergeModel(root *ast.Description, b *hclsyntax.Block, t *translator) hcl.Diagnostics {
	var diags hcl.Diagnostics
	if len(b.Labels) != 1 {
		return append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid model block",
			Detail:   "A model block takes exactly one label, its name.",
			Subject:  b.DefRange().Ptr(),
		})
	}
	name := b.Labels[0]
	if root.Name != "" && root.Name != name {
		return append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Conflicting model names",
			Detail:   fmt.Sprintf("Model %q was already named %q by another file.", name, root.Name),
			Subject:  b.LabelRanges[0].Ptr(),
		})
	}
	root.Name = name
	if root.Range.Filename == "" {
		root.Range = b.DefRange()
	}
	d := t.block(b)
	root.Children = append(root.Children, d.Children...)
	for k, v := range d.Facets {
		if root.Facets == nil {
			root.Facets = make(map[string]*ast.Expr)
		}
		root.Facets[k] = v
	}
	return diags
}
