package httpadapter

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

//go:embed openapi.yaml
var openAPISpec []byte

// newRequestValidator checks requests against the embedded OpenAPI document.
// Requests the document does not describe pass through to chi, which owns 404/405.
func newRequestValidator() (func(http.Handler) http.Handler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load openapi document", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "validate openapi document", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "build openapi router", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "validate request", fmt.Errorf("%s", requestValidationMessage(err))))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func requestValidationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
		if reqErr.Err != nil {
			return reqErr.Err.Error()
		}
	}
	return err.Error()
}
