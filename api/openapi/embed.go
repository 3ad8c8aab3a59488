// Package openapi embeds the HTTP API contract.
package openapi

import _ "embed"

// Spec is the OpenAPI 3 document describing the incident API.
//
//go:embed openapi.yaml
var Spec []byte
