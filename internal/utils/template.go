package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"text/template"
	"time"
)

// DateTimeLayout is the timestamp format used in rendered messages.
const DateTimeLayout = "2006-01-02 15:04:05"

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"json":     ToJSON,
		"datetime": FormatDateTime,
	}
}

// LoadTemplate loads and parses a template file with custom functions
func LoadTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	tmpl, err := ParseTemplate(path, string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}

	return tmpl, nil
}

// ParseTemplate parses text with the same functions LoadTemplate provides.
func ParseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs()).Parse(text)
}

// ToJSON converts a value to a JSON string
func ToJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// FormatDateTime renders t in UTC as DateTimeLayout.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}
