package etl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	crmschema "horse.fit/talentsync/schema"
)

// Canonical records are what the load stage accepts: trimmed strings,
// case-folded emails, explicit defaults for every optional field.

type CanonicalConsultant struct {
	CRMID     string
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	IsActive  bool
}

type CanonicalCandidate struct {
	CRMID          string
	FirstName      string
	LastName       string
	Email          string
	Phone          *string
	Skills         []string
	Experience     json.RawMessage
	Education      json.RawMessage
	Certifications json.RawMessage
	Location       *string
	Status         string
	ProfileText    string
}

type CanonicalPosition struct {
	CRMID           string
	Title           string
	Description     *string
	EmploymentType  *string
	RequiredSkills  []string
	PreferredSkills []string
	ExperienceLevel *string
	Location        *string
	Salary          *string
	ClientName      *string
	ClientCRMID     *string
	Status          string
	OpenDate        *time.Time
	CloseDate       *time.Time
	DescriptionText string
}

// TransformConsultants canonicalizes raw consultant records. Duplicate
// natural keys collapse last-wins.
func TransformConsultants(records []map[string]any) []CanonicalConsultant {
	out := make([]CanonicalConsultant, 0, len(records))
	index := make(map[string]int, len(records))

	for _, record := range records {
		key, err := crmschema.NaturalKey(record)
		if err != nil {
			continue
		}
		c := CanonicalConsultant{
			CRMID:     key,
			FirstName: trimmedString(record, "firstName"),
			LastName:  trimmedString(record, "lastName"),
			Email:     strings.ToLower(trimmedString(record, "email")),
			Phone:     optionalString(record, "phone"),
			IsActive:  true,
		}
		if i, seen := index[key]; seen {
			out[i] = c
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out
}

// TransformCandidates canonicalizes raw candidate records, synthesizing the
// profile text used for embedding generation.
func TransformCandidates(records []map[string]any) []CanonicalCandidate {
	out := make([]CanonicalCandidate, 0, len(records))
	index := make(map[string]int, len(records))

	for _, record := range records {
		key, err := crmschema.NaturalKey(record)
		if err != nil {
			continue
		}
		c := CanonicalCandidate{
			CRMID:          key,
			FirstName:      trimmedString(record, "firstName"),
			LastName:       trimmedString(record, "lastName"),
			Email:          strings.ToLower(trimmedString(record, "email")),
			Phone:          optionalString(record, "phone"),
			Skills:         stringList(record["skills"]),
			Experience:     rawJSON(record["experience"]),
			Education:      rawJSON(record["education"]),
			Certifications: rawJSON(record["certifications"]),
			Location:       optionalString(record, "location"),
			Status:         stringOrDefault(record, "status", "ACTIVE"),
		}
		c.ProfileText = candidateProfileText(c, record)
		if i, seen := index[key]; seen {
			out[i] = c
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out
}

// TransformPositions canonicalizes raw position records, synthesizing the
// description text used for embedding generation.
func TransformPositions(records []map[string]any) []CanonicalPosition {
	out := make([]CanonicalPosition, 0, len(records))
	index := make(map[string]int, len(records))

	for _, record := range records {
		key, err := crmschema.NaturalKey(record)
		if err != nil {
			continue
		}
		p := CanonicalPosition{
			CRMID:           key,
			Title:           trimmedString(record, "title"),
			Description:     optionalString(record, "description"),
			EmploymentType:  optionalString(record, "employmentType"),
			RequiredSkills:  stringList(record["requiredSkills"]),
			PreferredSkills: stringList(record["preferredSkills"]),
			ExperienceLevel: optionalString(record, "experienceLevel"),
			Location:        optionalString(record, "location"),
			Salary:          optionalStringified(record, "salary"),
			ClientName:      optionalString(record, "clientName"),
			ClientCRMID:     optionalStringified(record, "clientBullhornId"),
			Status:          stringOrDefault(record, "status", "OPEN"),
			OpenDate:        optionalTime(record, "openDate"),
			CloseDate:       optionalTime(record, "closeDate"),
		}
		p.DescriptionText = positionDescriptionText(p)
		if i, seen := index[key]; seen {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

func candidateProfileText(c CanonicalCandidate, record map[string]any) string {
	return fmt.Sprintf("%s %s. Skills: %s. Experience: %s. Education: %s. Certifications: %s.",
		c.FirstName,
		c.LastName,
		safeJoinList(record["skills"], "Not specified"),
		safeJoinList(record["experience"], "Not specified"),
		safeJoinList(record["education"], "Not specified"),
		safeJoinList(record["certifications"], "None"),
	)
}

func positionDescriptionText(p CanonicalPosition) string {
	return fmt.Sprintf("%s. Description: %s. Required Skills: %s. Preferred Skills: %s. Experience Level: %s. Location: %s.",
		p.Title,
		stringOrNotSpecified(p.Description),
		joinOrNotSpecified(p.RequiredSkills),
		joinOrNotSpecified(p.PreferredSkills),
		stringOrNotSpecified(p.ExperienceLevel),
		stringOrNotSpecified(p.Location),
	)
}

// safeJoinList joins a list whose items may be strings or objects. Objects
// contribute their name, title, or value key when present, otherwise all of
// their values.
func safeJoinList(value any, fallback string) string {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return fallback
	}

	parts := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			parts = append(parts, v)
		case map[string]any:
			if s := stringifyObjectItem(v); s != "" {
				parts = append(parts, s)
			}
		default:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}

func stringifyObjectItem(item map[string]any) string {
	for _, key := range []string{"name", "title", "value"} {
		if v, ok := item[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	parts := make([]string, 0, len(item))
	for _, v := range item {
		if v == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, " ")
}

func trimmedString(record map[string]any, key string) string {
	if v, ok := record[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func stringOrDefault(record map[string]any, key, fallback string) string {
	if v := trimmedString(record, key); v != "" {
		return v
	}
	return fallback
}

func optionalString(record map[string]any, key string) *string {
	if v, ok := record[key].(string); ok {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

// optionalStringified accepts strings and numbers, rendering numbers without
// losing precision.
func optionalStringified(record map[string]any, key string) *string {
	switch v := record[key].(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			return &trimmed
		}
	case json.Number:
		s := v.String()
		return &s
	case float64:
		s := strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
		return &s
	}
	return nil
}

func optionalTime(record map[string]any, key string) *time.Time {
	v, ok := record[key].(string)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func stringList(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			trimmed := strings.TrimSpace(s)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func rawJSON(value any) json.RawMessage {
	if value == nil {
		return nil
	}
	if list, ok := value.([]any); ok && len(list) == 0 {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return raw
}

func stringOrNotSpecified(v *string) string {
	if v == nil || *v == "" {
		return "Not specified"
	}
	return *v
}

func joinOrNotSpecified(list []string) string {
	if len(list) == 0 {
		return "Not specified"
	}
	return strings.Join(list, ", ")
}
