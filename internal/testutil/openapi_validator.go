// Package testutil provides helpers shared by integration tests: disposable
// containers, an API client and an OpenAPI contract validator.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// uncheckedPaths serve plain text or the contract itself.
var uncheckedPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/api/openapi.yaml": true,
}

// OpenAPIValidator checks requests and responses against the API contract.
type OpenAPIValidator struct {
	router routers.Router
}

// NewOpenAPIValidator loads the contract at specPath or fails the test.
func NewOpenAPIValidator(t *testing.T, specPath string) *OpenAPIValidator {
	t.Helper()

	v, err := LoadOpenAPIValidator(specPath)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator loads and validates the contract at specPath.
// It is meant for TestMain, where no *testing.T exists.
func LoadOpenAPIValidator(specPath string) (*OpenAPIValidator, error) {
	doc, err := openapi3.NewLoader().LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec from %s: %w", specPath, err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI spec: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{router: router}, nil
}

func (v *OpenAPIValidator) shouldSkipValidation(path string) bool {
	return uncheckedPaths[path]
}

// input resolves the contract operation for req.
func (v *OpenAPIValidator) input(req *http.Request) (*openapi3filter.RequestValidationInput, error) {
	// The contract declares no servers, so only method and path take part in matching.
	routeReq, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		return nil, err
	}

	route, pathParams, err := v.router.FindRoute(routeReq)
	if err != nil {
		return nil, fmt.Errorf("no route for %s %s: %w", req.Method, req.URL.Path, err)
	}

	return &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options:    &openapi3filter.Options{MultiError: true},
	}, nil
}

// ValidateRequest reports a test error when req does not match the contract.
func (v *OpenAPIValidator) ValidateRequest(t *testing.T, req *http.Request) {
	t.Helper()

	if v.shouldSkipValidation(req.URL.Path) {
		return
	}

	in, err := v.input(req)
	if err != nil {
		t.Errorf("OpenAPI: %v", err)
		return
	}

	if err := openapi3filter.ValidateRequest(context.Background(), in); err != nil {
		t.Errorf("OpenAPI request validation failed for %s %s: %v", req.Method, req.URL.Path, err)
	}
}

// ValidateResponse reports a test error when resp, the answer to req, does
// not match the contract. The response body is read and replaced, so callers
// can still decode it.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if v.shouldSkipValidation(req.URL.Path) {
		return
	}

	in, err := v.input(req)
	if err != nil {
		t.Errorf("OpenAPI: %v", err)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: in,
		Status:                 resp.StatusCode,
		Header:                 resp.Header,
		Body:                   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	})
	if err != nil {
		t.Errorf("OpenAPI response validation failed for %s %s (status %d):\n%s\nResponse body: %s",
			req.Method, req.URL.Path, resp.StatusCode, truncate(err.Error(), 500), truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
