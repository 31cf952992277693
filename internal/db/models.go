package db

import (
	"encoding/json"
	"time"
)

// EmbeddingDimensions is fixed by the embedding service contract.
const EmbeddingDimensions = 384

// Consultant maps talent.consultants.
type Consultant struct {
	ConsultantID int64     `gorm:"column:consultant_id;primaryKey;autoIncrement"`
	CRMID        string    `gorm:"column:crm_id;type:text;not null;unique"`
	FirstName    string    `gorm:"column:first_name;type:text;not null"`
	LastName     string    `gorm:"column:last_name;type:text;not null"`
	Email        string    `gorm:"column:email;type:text;not null"`
	Phone        *string   `gorm:"column:phone;type:text"`
	IsActive     bool      `gorm:"column:is_active;type:boolean;not null;default:true"`
	LastSyncedAt time.Time `gorm:"column:last_synced_at;type:timestamptz;not null;default:now()"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Consultant) TableName() string { return "talent.consultants" }

// Candidate maps talent.candidates. Skills are a flat text array so the
// matching query can use array-overlap filtering; nested structures
// (experience, education, certifications) stay jsonb.
type Candidate struct {
	CandidateID      int64           `gorm:"column:candidate_id;primaryKey;autoIncrement"`
	CRMID            string          `gorm:"column:crm_id;type:text;not null;unique"`
	FirstName        string          `gorm:"column:first_name;type:text;not null"`
	LastName         string          `gorm:"column:last_name;type:text;not null"`
	Email            string          `gorm:"column:email;type:text;not null"`
	Phone            *string         `gorm:"column:phone;type:text"`
	Skills           []string        `gorm:"column:skills;type:text[]"`
	Experience       json.RawMessage `gorm:"column:experience;type:jsonb"`
	Education        json.RawMessage `gorm:"column:education;type:jsonb"`
	Certifications   json.RawMessage `gorm:"column:certifications;type:jsonb"`
	Location         *string         `gorm:"column:location;type:text"`
	Status           string          `gorm:"column:status;type:text;not null;default:ACTIVE"`
	ProfileText      string          `gorm:"column:profile_text;type:text;not null;default:''"`
	ProfileEmbedding *string         `gorm:"column:profile_embedding;type:vector(384)"`
	LastSyncedAt     time.Time       `gorm:"column:last_synced_at;type:timestamptz;not null;default:now()"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Candidate) TableName() string { return "talent.candidates" }

// Position maps talent.positions.
type Position struct {
	PositionID           int64      `gorm:"column:position_id;primaryKey;autoIncrement"`
	CRMID                string     `gorm:"column:crm_id;type:text;not null;unique"`
	Title                string     `gorm:"column:title;type:text;not null"`
	Description          *string    `gorm:"column:description;type:text"`
	EmploymentType       *string    `gorm:"column:employment_type;type:text"`
	RequiredSkills       []string   `gorm:"column:required_skills;type:text[]"`
	PreferredSkills      []string   `gorm:"column:preferred_skills;type:text[]"`
	ExperienceLevel      *string    `gorm:"column:experience_level;type:text"`
	Location             *string    `gorm:"column:location;type:text"`
	Salary               *string    `gorm:"column:salary;type:text"`
	ClientName           *string    `gorm:"column:client_name;type:text"`
	ClientCRMID          *string    `gorm:"column:client_crm_id;type:text"`
	Status               string     `gorm:"column:status;type:text;not null;default:OPEN"`
	OpenDate             *time.Time `gorm:"column:open_date;type:timestamptz"`
	CloseDate            *time.Time `gorm:"column:close_date;type:timestamptz"`
	DescriptionText      string     `gorm:"column:description_text;type:text;not null;default:''"`
	DescriptionEmbedding *string    `gorm:"column:description_embedding;type:vector(384)"`
	LastSyncedAt         time.Time  `gorm:"column:last_synced_at;type:timestamptz;not null;default:now()"`
	CreatedAt            time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Position) TableName() string { return "talent.positions" }

// Match maps talent.matches. One row per (candidate_id, position_id); scores
// are refreshed in place on every matching run while status is set once at
// insert and never overwritten by the engine. Rows that fall below the
// threshold on a later run stay in place.
type Match struct {
	MatchID         int64     `gorm:"column:match_id;primaryKey;autoIncrement"`
	CandidateID     int64     `gorm:"column:candidate_id;type:bigint;not null;uniqueIndex:idx_matches_candidate_position"`
	PositionID      int64     `gorm:"column:position_id;type:bigint;not null;uniqueIndex:idx_matches_candidate_position"`
	OverallScore    int       `gorm:"column:overall_score;type:integer;not null"`
	SemanticScore   *int      `gorm:"column:semantic_score;type:integer"`
	SkillScore      int       `gorm:"column:skill_score;type:integer;not null"`
	ExperienceScore int       `gorm:"column:experience_score;type:integer;not null"`
	LocationScore   int       `gorm:"column:location_score;type:integer;not null"`
	Status          string    `gorm:"column:status;type:text;not null;default:PENDING"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Match) TableName() string { return "talent.matches" }

func autoMigrateModels() []any {
	return []any{
		&Consultant{},
		&Candidate{},
		&Position{},
		&Match{},
	}
}
