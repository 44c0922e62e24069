package domain

// ResponseTemplate is a static, pre-authored synthetic response substituted for
// the real one when a request is blocked.
type ResponseTemplate struct {
	ID          string // stable identifier, e.g. "404_plain"
	Status      int    // HTTP status code
	ContentType string
	Body        string
	RetryAfter  int // seconds; 0 means no Retry-After header
}

// The four canned templates. Bodies are deliberately terse plain text so
// clients under test exercise their status-code handling, not body parsing.
var (
	TemplateNotFound = ResponseTemplate{
		ID:          "404_plain",
		Status:      404,
		ContentType: "text/plain; charset=utf-8",
		Body:        "faultgate: resource not found\n",
	}
	TemplateServiceUnavailable = ResponseTemplate{
		ID:          "503_plain",
		Status:      503,
		ContentType: "text/plain; charset=utf-8",
		Body:        "faultgate: service unavailable\n",
	}
	TemplateRateLimitBurst = ResponseTemplate{
		ID:          "429_burst",
		Status:      429,
		ContentType: "text/plain; charset=utf-8",
		Body:        "faultgate: rate limit exceeded (burst)\n",
		RetryAfter:  15,
	}
	TemplateRateLimitSustained = ResponseTemplate{
		ID:          "429_sustained",
		Status:      429,
		ContentType: "text/plain; charset=utf-8",
		Body:        "faultgate: rate limit exceeded (sustained)\n",
		RetryAfter:  300,
	}
)

// TemplateFor maps a failure type to its canned response template. The mapping
// is total: unknown values fall back to the NotFound template so a Decision can
// always be acted on.
func TemplateFor(t FailureType) ResponseTemplate {
	switch t {
	case ServiceUnavailable:
		return TemplateServiceUnavailable
	case RateLimitBurst:
		return TemplateRateLimitBurst
	case RateLimitSustained:
		return TemplateRateLimitSustained
	default:
		return TemplateNotFound
	}
}
