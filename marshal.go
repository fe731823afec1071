package snaprestore

import (
	"encoding/json"
)

// Marshal create a single point of change if the encoding changes.
func Marshal[T any](t *T) ([]byte, error) {
	return json.Marshal(t)
}

func Unmarshal[T any](b []byte, t *T) error {
	err := json.Unmarshal(b, t)
	if err != nil {
		return err
	}

	return nil
}
