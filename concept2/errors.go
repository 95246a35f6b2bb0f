package concept2

import "fmt"

// APIError is a non-2xx response from the Logbook API or its token endpoint.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("concept2 API error (%d) on %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// SchemaError means a payload did not have the expected shape.
type SchemaError struct {
	Payload string
	Field   string
	Err     error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("concept2 %s payload: field %q: %v", e.Payload, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("concept2 %s payload: missing required field %q", e.Payload, e.Field)
	default:
		return fmt.Sprintf("concept2 %s payload: %v", e.Payload, e.Err)
	}
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
