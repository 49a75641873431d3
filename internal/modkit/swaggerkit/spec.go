package swaggerkit

import (
	"encoding/json"
	"net/http"
	"strings"
)

// SpecMutator adjusts the parsed spec before it is served
type SpecMutator func(map[string]any)

var mutators []SpecMutator

// Register adds a spec mutator. Call it from bootstrap before serving
func Register(m SpecMutator) {
	if m != nil {
		mutators = append(mutators, m)
	}
}

// serveDocJSON serves the spec after normalizing it to OAS 3.0 and adding
// the shared error responses every operation can return
func serveDocJSON(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var spec map[string]any
		if err := json.Unmarshal([]byte(docReader()), &spec); err != nil {
			http.Error(w, "spec parse error", http.StatusInternalServerError)
			return
		}
		normalize(spec, "/api/v1", title)
		for _, m := range mutators {
			m(spec)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(spec)
	}
}

func normalize(spec map[string]any, server, title string) {
	// the UI does not render 3.1 yet
	delete(spec, "swagger")
	if v, _ := spec["openapi"].(string); v == "" || strings.HasPrefix(v, "3.1") || strings.HasPrefix(v, "2") {
		spec["openapi"] = "3.0.3"
	}
	if _, ok := spec["servers"]; !ok {
		spec["servers"] = []any{map[string]any{"url": server}}
	}
	if title != "" {
		info := child(spec, "info")
		info["title"] = title
	}

	schemas := child(child(spec, "components"), "schemas")
	if _, ok := schemas["ErrorEnvelope"]; !ok {
		schemas["ErrorEnvelope"] = errorSchema()
	}
	paths, _ := spec["paths"].(map[string]any)
	for _, p := range paths {
		ops, _ := p.(map[string]any)
		for _, o := range ops {
			op, ok := o.(map[string]any)
			if !ok {
				continue
			}
			resps := child(op, "responses")
			for code, desc := range map[string]string{"401": "Unauthorized", "500": "Internal Server Error"} {
				if _, ok := resps[code]; !ok {
					resps[code] = errorResponse(desc)
				}
			}
		}
	}
}

func child(m map[string]any, key string) map[string]any {
	c, ok := m[key].(map[string]any)
	if !ok {
		c = map[string]any{}
		m[key] = c
	}
	return c
}

func errorSchema() map[string]any {
	str := map[string]any{"type": "string"}
	num := map[string]any{"type": "integer", "format": "int32"}
	return map[string]any{
		"type":        "object",
		"description": "Error envelope returned by every endpoint",
		"properties": map[string]any{
			"status_code": num,
			"status":      str,
			"code":        num,
			"kind":        str,
			"error":       str,
			"field":       str,
			"request_id":  str,
		},
		"required": []any{"status_code", "status", "kind", "error"},
	}
}

func errorResponse(desc string) map[string]any {
	return map[string]any{
		"description": desc,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/ErrorEnvelope"},
			},
		},
	}
}
