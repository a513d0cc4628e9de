package output

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders results as YAML. Values go through their JSON form
// first so field names and null handling match the JSON output.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatWindows(list WindowList) (string, error) {
	return toYAML(list)
}

func (f *YAMLFormatter) FormatReset(result ResetResult) (string, error) {
	return toYAML(result)
}

func (f *YAMLFormatter) FormatVerdict(v Verdict) (string, error) {
	return toYAML(v)
}

func toYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}
