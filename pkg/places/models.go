package places

import (
	"encoding/json"
)

// NearbyResponse is the envelope of a nearby search. Results is kept raw so a
// missing or malformed array can be told apart from a transport failure.
type NearbyResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Results      json.RawMessage `json:"results"`
}

// Query carries the parameters of a nearby search.
type Query struct {
	Location string
	Radius   string
	Type     string
}
