package intake

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/astrowidget/astroproxy/internal/core"
)

// DecodeSubmission reads a JSON object into a Submission. Strings are kept
// verbatim and numbers keep their decimal text; null, booleans, objects and
// arrays are dropped. On malformed input it returns an empty submission
// together with the error, so callers can still run it through validation.
func DecodeSubmission(r io.Reader) (core.Submission, error) {
	sub := core.Submission{}
	if r == nil {
		return sub, nil
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return sub, nil
		}
		return sub, fmt.Errorf("decode submission: %w", err)
	}

	for key, value := range raw {
		switch v := value.(type) {
		case string:
			sub[key] = v
		case json.Number:
			sub[key] = v.String()
		}
	}
	return sub, nil
}
