// Package matching scores active candidates against open positions and
// persists the resulting pairings.
package matching

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"horse.fit/talentsync/internal/globaltime"
)

// Composite score weights. Semantic similarity dominates; the traditional
// skill/experience/location split shares the remainder.
const (
	weightSemantic   = 0.60
	weightSkill      = 0.24
	weightExperience = 0.12
	weightLocation   = 0.04
)

// defaultComponentScore is used whenever a component has no signal: missing
// embeddings, unknown experience, absent locations.
const defaultComponentScore = 50

var experienceLevels = map[string]int{
	"ENTRY":     1,
	"MID":       2,
	"SENIOR":    3,
	"LEAD":      4,
	"EXECUTIVE": 5,
}

var skillSynonyms = map[string][]string{
	"javascript": {"js", "es6", "es2015", "ecmascript"},
	"typescript": {"ts"},
	"python":     {"py"},
	"react":      {"reactjs", "react.js"},
	"node":       {"nodejs", "node.js"},
}

// canonicalizeSkill lower-cases a skill and folds known aliases onto their
// canonical name.
func canonicalizeSkill(skill string) string {
	lower := strings.ToLower(strings.TrimSpace(skill))
	for canonical, aliases := range skillSynonyms {
		if lower == canonical {
			return canonical
		}
		for _, alias := range aliases {
			if lower == alias {
				return canonical
			}
		}
	}
	return lower
}

// scoreSkills computes the weighted overlap between a candidate's skills and
// a position's required (weight 2) and preferred (weight 1) skills. A
// position with no skill requirements scores zero for everyone.
func scoreSkills(candidateSkills, requiredSkills, preferredSkills []string) int {
	if len(candidateSkills) == 0 {
		return 0
	}

	candidate := make(map[string]bool, len(candidateSkills))
	for _, s := range candidateSkills {
		candidate[canonicalizeSkill(s)] = true
	}

	requiredMatched := 0
	for _, s := range requiredSkills {
		if candidate[canonicalizeSkill(s)] {
			requiredMatched++
		}
	}
	preferredMatched := 0
	for _, s := range preferredSkills {
		if candidate[canonicalizeSkill(s)] {
			preferredMatched++
		}
	}

	denominator := len(requiredSkills)*2 + len(preferredSkills)
	if denominator == 0 {
		return 0
	}
	numerator := requiredMatched*2 + preferredMatched
	return int(math.Round(float64(numerator) / float64(denominator) * 100))
}

type experienceEntry struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// estimateYearsExperience sums the month spans of a candidate's experience
// entries. Entries without a parseable start date are ignored; an open-ended
// entry runs to now. Returns false when nothing is usable.
func estimateYearsExperience(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var entries []experienceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, false
	}

	totalMonths := 0
	now := globaltime.Now()
	for _, entry := range entries {
		start, ok := parseExperienceDate(entry.StartDate)
		if !ok {
			continue
		}
		end := now
		if parsed, ok := parseExperienceDate(entry.EndDate); ok {
			end = parsed
		}
		months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
		if months > 0 {
			totalMonths += months
		}
	}
	if totalMonths == 0 {
		return 0, false
	}
	return float64(totalMonths) / 12, true
}

func parseExperienceDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// experienceLevelFromYears buckets years into five ordinal levels at the
// 2/5/8/12 year thresholds.
func experienceLevelFromYears(years float64) int {
	switch {
	case years < 2:
		return 0
	case years < 5:
		return 1
	case years < 8:
		return 2
	case years < 12:
		return 3
	default:
		return 4
	}
}

// scoreExperience compares the candidate's estimated level against the
// position's target level. Unknown target level strings count as SENIOR.
func scoreExperience(experience json.RawMessage, targetLevel *string) int {
	if targetLevel == nil || strings.TrimSpace(*targetLevel) == "" {
		return defaultComponentScore
	}
	target, ok := experienceLevels[strings.ToUpper(strings.TrimSpace(*targetLevel))]
	if !ok {
		target = experienceLevels["SENIOR"]
	}

	years, ok := estimateYearsExperience(experience)
	if !ok {
		return defaultComponentScore
	}

	diff := experienceLevelFromYears(years) - target
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return 100
	case 1:
		return 75
	case 2:
		return 50
	default:
		return 25
	}
}

// scoreLocation compares locations as "city, region" strings. Remote on
// either side is a full match.
func scoreLocation(candidateLocation, targetLocation *string) int {
	if targetLocation == nil || strings.TrimSpace(*targetLocation) == "" {
		return defaultComponentScore
	}
	if candidateLocation == nil || strings.TrimSpace(*candidateLocation) == "" {
		return defaultComponentScore
	}

	candidate := strings.ToLower(strings.TrimSpace(*candidateLocation))
	target := strings.ToLower(strings.TrimSpace(*targetLocation))

	if strings.Contains(candidate, "remote") || strings.Contains(target, "remote") {
		return 100
	}
	if candidate == target {
		return 100
	}

	candidateParts := strings.Split(candidate, ",")
	targetParts := strings.Split(target, ",")
	if strings.TrimSpace(candidateParts[0]) == strings.TrimSpace(targetParts[0]) {
		return 80
	}
	if len(candidateParts) >= 2 && len(targetParts) >= 2 {
		if strings.TrimSpace(candidateParts[len(candidateParts)-1]) == strings.TrimSpace(targetParts[len(targetParts)-1]) {
			return 60
		}
	}
	return 30
}

// overallScore blends the component scores into the composite 0-100 score.
func overallScore(semantic float64, skill, experience, location int) int {
	composite := semantic*weightSemantic +
		float64(skill)*weightSkill +
		float64(experience)*weightExperience +
		float64(location)*weightLocation
	return int(math.Round(composite))
}
