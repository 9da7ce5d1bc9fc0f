package archive

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadJSON parses the JSON document at location into a generic value.
// Order-sensitive parts of the image formats are JSON arrays and keep their
// input order through decoding.
func LoadJSON(location string) (interface{}, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening JSON file: %s", location)
	}
	defer f.Close()
	var value interface{}
	if err := json.NewDecoder(f).Decode(&value); err != nil {
		return nil, errors.Wrapf(err, "failed parsing JSON file: %s", location)
	}
	return value, nil
}

// LoadJSONMap parses the JSON document at location, requiring a top-level mapping.
func LoadJSONMap(location string) (map[string]interface{}, error) {
	value, err := LoadJSON(location)
	if err != nil {
		return nil, err
	}
	mapping, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON mapping in: %s", location)
	}
	return mapping, nil
}

// LoadJSONArray parses the JSON document at location, requiring a top-level array.
func LoadJSONArray(location string) ([]interface{}, error) {
	value, err := LoadJSON(location)
	if err != nil {
		return nil, err
	}
	array, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON array in: %s", location)
	}
	return array, nil
}

// LowerKeys returns a copy of mapping with every key lowercased. The operation
// is applied recursively to nested mappings and to mappings inside arrays.
func LowerKeys(mapping map[string]interface{}) map[string]interface{} {
	lowered := map[string]interface{}{}
	for key, value := range mapping {
		lowered[strings.ToLower(key)] = lowerValue(value)
	}
	return lowered
}

func lowerValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		return LowerKeys(typed)
	case []interface{}:
		lowered := make([]interface{}, len(typed))
		for i, element := range typed {
			lowered[i] = lowerValue(element)
		}
		return lowered
	default:
		return value
	}
}

// SHA256Digest returns the bare hexadecimal SHA256 checksum of the file content
// at location, or an empty string when the location does not exist.
func SHA256Digest(location string) (string, error) {
	if location == "" {
		return "", nil
	}
	f, err := os.Open(location)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed opening file for digest: %s", location)
	}
	defer f.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", errors.Wrapf(err, "failed digesting file: %s", location)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
