// Package http_client registers the fetch primitive, which lets agents
// read data from HTTP endpoints during a simulation.
package http_client

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// DefaultTimeout bounds a request when the module has no client.
const DefaultTimeout = 10 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client performs the requests. Nil uses a client with DefaultTimeout.
	Client *http.Client
}

func (m *Module) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// Fetch performs a request and returns a map with status_code and body.
// Transport failures are warnings and yield nil.
func (m *Module) Fetch(s *scope.Scope, args map[string]cty.Value) (cty.Value, error) {
	url := args["url"].AsString()
	method := http.MethodGet
	if v, ok := args["method"]; ok && !v.IsNull() {
		method = strings.ToUpper(v.AsString())
	}
	logger := s.Logger().With("method", method, "url", url)
	logger.Debug("Making HTTP request.")

	req, err := http.NewRequestWithContext(s.Context(), method, url, nil)
	if err != nil {
		return cty.NilVal, scope.Fatalf("fetch: invalid request: %v", err)
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return cty.NullVal(cty.DynamicPseudoType), scope.Warningf("fetch %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cty.NullVal(cty.DynamicPseudoType), scope.Warningf("fetch %s: failed to read response body: %v", url, err)
	}
	logger.Debug("Received HTTP response.", "status", resp.Status)

	return cty.ObjectVal(map[string]cty.Value{
		"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
		"body":        cty.StringVal(string(body)),
	}), nil
}

// Register registers the primitive with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterPrimitive(&registry.Primitive{
		Name: "fetch",
		Args: []registry.PrimitiveArg{
			{Name: "url", Type: types.String},
			{Name: "method", Type: types.String, Optional: true},
		},
		ReturnType: types.Map,
		Fn:         m.Fetch,
	})
}
