// Package docs embeds the OpenAPI description of the HTTP API.
package docs

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var OpenAPI []byte

// SpecPath is where the router serves OpenAPI.
const SpecPath = "/swagger/openapi.yaml"

// SpecHandler serves the embedded OpenAPI document.
func SpecHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(OpenAPI)
}
