package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinPath selects standard input for file flags.
const StdinPath = "-"

// ReadInput returns the contents of path, or of stdin when path is "" or "-".
func ReadInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == StdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// ReadOptionalInput reads path only when it is set.
func ReadOptionalInput(path string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	return ReadInput(path, stdin)
}

// WriteJSON prints v as indented JSON.
func WriteJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
