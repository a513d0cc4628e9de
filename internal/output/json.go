package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatWindows(list WindowList) (string, error) {
	return f.marshal(list)
}

func (f *JSONFormatter) FormatReset(result ResetResult) (string, error) {
	return f.marshal(result)
}

func (f *JSONFormatter) FormatVerdict(v Verdict) (string, error) {
	return f.marshal(v)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
