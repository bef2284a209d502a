package elliptic

// ErrorKind classifies client failures so callers can decide how to report
// and whether to surface retry guidance.
type ErrorKind string

const (
	KindAuth       ErrorKind = "api_auth"
	KindRateLimit  ErrorKind = "api_rate_limit"
	KindServer     ErrorKind = "api_server"
	KindTimeout    ErrorKind = "api_timeout"
	KindConnection ErrorKind = "api_connection"
	KindMalformed  ErrorKind = "api_malformed"
	KindUnexpected ErrorKind = "unexpected"
)

// APIError is a classified failure from the wallet analysis endpoint.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Transient reports whether the failure is worth retrying. Auth failures
// and malformed responses never recover on retry.
func (e *APIError) Transient() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout, KindConnection:
		return true
	}
	return false
}
