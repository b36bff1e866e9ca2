package provider

import "fmt"

// UpstreamError reports a failed provider call: a transport failure, a
// non-2xx response, or an HTTP 200 whose success envelope carries a failure
// marker. The aggregator absorbs these and moves to the next provider; they
// are never surfaced to HTTP clients.
type UpstreamError struct {
	Provider   string
	StatusCode int // 0 on transport failure
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
