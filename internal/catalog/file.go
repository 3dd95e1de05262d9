package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const recordsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["professor_id", "chunk_id", "type"],
    "properties": {
      "professor_id": {"type": "string", "minLength": 1},
      "chunk_id":     {"type": "string"},
      "type":         {"type": "string"},
      "indicator":    {"type": "string"},
      "question":     {"type": "string"},
      "answer":       {"type": "string"}
    },
    "if":   {"properties": {"type": {"const": "qa"}}},
    "then": {"required": ["indicator", "answer"]}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(recordsSchema)

// ReadRecords reads and validates a JSON array of catalog records.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %q: %w", path, err)
	}

	return ParseRecords(data)
}

func ParseRecords(data []byte) ([]Record, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	return records, nil
}

// LoadFile builds an in-memory catalog from a JSON file.
func LoadFile(path string) (*Memory, error) {
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}

	return NewMemory(records)
}
