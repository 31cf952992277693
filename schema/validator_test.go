package crmschema

import (
	"encoding/json"
	"testing"
)

func TestValidateCRMRecord_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"id": 1001,
		"firstName": "Jane",
		"lastName": "Doe",
		"email": "JANE.DOE@example.com",
		"skills": ["Python", "Go"],
		"experience": [{"title":"Engineer","company":"Acme","months":24}]
	}`)

	record, err := ValidateCRMRecord(payload)
	if err != nil {
		t.Fatalf("expected record to be valid, got error: %v", err)
	}

	key, err := NaturalKey(record)
	if err != nil {
		t.Fatalf("expected natural key, got error: %v", err)
	}
	if key != "1001" {
		t.Fatalf("expected natural key 1001, got %q", key)
	}
}

func TestValidateCRMRecord_StringID(t *testing.T) {
	payload := json.RawMessage(`{"id": "cand-42", "firstName": "Sam"}`)

	record, err := ValidateCRMRecord(payload)
	if err != nil {
		t.Fatalf("expected record to be valid, got error: %v", err)
	}

	key, err := NaturalKey(record)
	if err != nil {
		t.Fatalf("expected natural key, got error: %v", err)
	}
	if key != "cand-42" {
		t.Fatalf("expected natural key cand-42, got %q", key)
	}
}

func TestValidateCRMRecord_MissingID(t *testing.T) {
	payload := json.RawMessage(`{"firstName": "Jane", "lastName": "Doe"}`)

	if _, err := ValidateCRMRecord(payload); err == nil {
		t.Fatalf("expected validation to fail for missing id")
	}
}

func TestValidateCRMRecord_EmptyStringID(t *testing.T) {
	payload := json.RawMessage(`{"id": "   "}`)

	if _, err := ValidateCRMRecord(payload); err == nil {
		t.Fatalf("expected validation to fail for blank id")
	}
}

func TestValidateCRMRecord_NotAnObject(t *testing.T) {
	payload := json.RawMessage(`[{"id": 1}]`)

	if _, err := ValidateCRMRecord(payload); err == nil {
		t.Fatalf("expected validation to fail for non-object record")
	}
}

func TestValidateCRMRecord_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"id": 1}{"id": 2}`)

	if _, err := ValidateCRMRecord(payload); err == nil {
		t.Fatalf("expected validation to fail for trailing content")
	}
}
