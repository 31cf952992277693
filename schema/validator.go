// Package crmschema validates raw CRM records before canonicalization. A
// record that fails validation is dropped and counted by the caller; it never
// reaches the transform stage.
package crmschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed crm_record.schema.json
var crmRecordSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateCRMRecord checks one raw CRM record against the record schema and
// returns the decoded object on success. The natural key must be present and
// non-empty.
func ValidateCRMRecord(payload json.RawMessage) (map[string]any, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode record JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	record, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record is not an object")
	}

	if err := validateNaturalKey(record); err != nil {
		return nil, err
	}

	return record, nil
}

// NaturalKey extracts the record's CRM id as a string. Numeric ids come back
// without an exponent or fractional part.
func NaturalKey(record map[string]any) (string, error) {
	raw, ok := record["id"]
	if !ok {
		return "", fmt.Errorf("record has no id")
	}
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", fmt.Errorf("record id is empty")
		}
		return trimmed, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", v), ".0"), nil
	default:
		return "", fmt.Errorf("record id has unsupported type %T", raw)
	}
}

func validateNaturalKey(record map[string]any) error {
	key, err := NaturalKey(record)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("record id is empty")
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("crm_record.schema.json", strings.NewReader(crmRecordSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("crm_record.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("record is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("record contains trailing content")
	}

	return value, nil
}
