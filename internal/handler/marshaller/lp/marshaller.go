package lpmarshaller

import (
	"github.com/goccy/go-json"
)

// Response defines the top-level JSON array to support frame batching.
type Response struct {
	Events []json.RawMessage `json:"events"`
}

// MarshallFrames wraps already encoded registry frames into a single JSON batch.
func MarshallFrames(frames [][]byte) ([]byte, error) {
	res := Response{
		Events: make([]json.RawMessage, 0, len(frames)),
	}
	for _, f := range frames {
		res.Events = append(res.Events, json.RawMessage(f))
	}
	return json.Marshal(res)
}
