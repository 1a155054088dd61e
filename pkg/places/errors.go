package places

// MalformedError marks a response body that is not a JSON object.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "malformed nearby search response: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}
