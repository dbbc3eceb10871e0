// Package openapi embeds the OpenAPI description of the microerp HTTP API.
package openapi

import _ "embed"

//go:embed microerp.yaml
var document []byte

// Document returns a copy of the embedded OpenAPI YAML.
func Document() []byte {
	return append([]byte(nil), document...)
}
