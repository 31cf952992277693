package etl

// RowMapper validates canonical rows and flattens them into bound arguments
// matching a TableSchema's column order. Rows failing Validate are counted
// skipped, never loaded.
type RowMapper[T any] interface {
	Validate(row T) bool
	Args(row T) []any
}

var consultantSchema = TableSchema{
	Table:          "talent.consultants",
	Columns:        []string{"crm_id", "first_name", "last_name", "email", "phone", "is_active"},
	NowColumns:     []string{"last_synced_at", "created_at", "updated_at"},
	ConflictColumn: "crm_id",
	UpdateColumns:  []string{"first_name", "last_name", "email", "phone", "is_active", "last_synced_at"},
}

var candidateSchema = TableSchema{
	Table: "talent.candidates",
	Columns: []string{
		"crm_id", "first_name", "last_name", "email", "phone", "skills",
		"experience", "education", "certifications", "location", "status", "profile_text",
	},
	Casts: map[string]string{
		"skills":         "::text[]",
		"experience":     "::jsonb",
		"education":      "::jsonb",
		"certifications": "::jsonb",
	},
	NowColumns:     []string{"last_synced_at", "created_at", "updated_at"},
	ConflictColumn: "crm_id",
	UpdateColumns: []string{
		"first_name", "last_name", "email", "phone", "skills", "experience",
		"education", "certifications", "location", "status", "profile_text", "last_synced_at",
	},
}

var positionSchema = TableSchema{
	Table: "talent.positions",
	Columns: []string{
		"crm_id", "title", "description", "employment_type", "required_skills",
		"preferred_skills", "experience_level", "location", "salary", "client_name",
		"client_crm_id", "status", "open_date", "close_date", "description_text",
	},
	Casts: map[string]string{
		"required_skills":  "::text[]",
		"preferred_skills": "::text[]",
	},
	NowColumns:     []string{"last_synced_at", "created_at", "updated_at"},
	ConflictColumn: "crm_id",
	UpdateColumns: []string{
		"title", "description", "employment_type", "required_skills", "preferred_skills",
		"experience_level", "location", "salary", "client_name", "client_crm_id",
		"status", "open_date", "close_date", "description_text", "last_synced_at",
	},
}

type consultantMapper struct{}

func (consultantMapper) Validate(row CanonicalConsultant) bool {
	return row.CRMID != "" && row.FirstName != "" && row.LastName != "" && row.Email != ""
}

func (consultantMapper) Args(row CanonicalConsultant) []any {
	return []any{row.CRMID, row.FirstName, row.LastName, row.Email, row.Phone, row.IsActive}
}

type candidateMapper struct{}

func (candidateMapper) Validate(row CanonicalCandidate) bool {
	return row.CRMID != "" && row.FirstName != "" && row.LastName != "" && row.Email != ""
}

func (candidateMapper) Args(row CanonicalCandidate) []any {
	return []any{
		row.CRMID, row.FirstName, row.LastName, row.Email, row.Phone,
		row.Skills, jsonArg(row.Experience), jsonArg(row.Education), jsonArg(row.Certifications),
		row.Location, row.Status, row.ProfileText,
	}
}

type positionMapper struct{}

func (positionMapper) Validate(row CanonicalPosition) bool {
	return row.CRMID != "" && row.Title != ""
}

func (positionMapper) Args(row CanonicalPosition) []any {
	return []any{
		row.CRMID, row.Title, row.Description, row.EmploymentType, row.RequiredSkills,
		row.PreferredSkills, row.ExperienceLevel, row.Location, row.Salary, row.ClientName,
		row.ClientCRMID, row.Status, row.OpenDate, row.CloseDate, row.DescriptionText,
	}
}

// jsonArg renders raw JSON as a nullable text parameter so the ::jsonb cast
// happens server-side.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
