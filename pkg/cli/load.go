package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadFile decodes a YAML or JSON file into v. "-" reads stdin.
func LoadFile(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("cli: read %s: %w", path, err)
	}
	return Decode(data, path, v)
}

// Decode parses data as JSON when name ends in .json and as YAML
// otherwise.
func Decode(data []byte, name string, v any) error {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse JSON %s: %w", name, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cli: parse YAML %s: %w", name, err)
	}
	return nil
}
