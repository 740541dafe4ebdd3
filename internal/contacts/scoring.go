package contacts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/warmpath/backend/internal/storage/models"
)

// MaxResults caps the ranked list returned by ScoreAndRank.
const MaxResults = 10

const (
	companyExactPoints   = 3.0
	companyPartialPoints = 1.0
	roleExactPoints      = 2.0
	rolePartialPoints    = 1.0
	keywordPoints        = 1.0
	relationshipWeight   = 0.4

	minRelationship = 1
	maxRelationship = 5
)

// Filters are the optional query inputs. Blank values are ignored.
type Filters struct {
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f Filters) Trimmed() Filters {
	return Filters{
		Company: strings.TrimSpace(f.Company),
		Role:    strings.TrimSpace(f.Role),
		Keyword: strings.TrimSpace(f.Keyword),
	}
}

// Empty reports whether no filter carries any text.
func (f Filters) Empty() bool {
	t := f.Trimmed()
	return t.Company == "" && t.Role == "" && t.Keyword == ""
}

// ScoredContact is a contact with its relevance score and the reasons that
// produced it, in evaluation order.
type ScoredContact struct {
	models.Contact
	Score    float64  `json:"score"`
	WhyMatch []string `json:"why_match"`
}

// ScoreAndRank scores every contact against filters, drops non-positive
// scores, and returns at most MaxResults contacts by descending score. Ties
// keep their input order. The input slice is not modified.
func ScoreAndRank(list []models.Contact, filters Filters) []ScoredContact {
	companyNorm := Normalize(filters.Company)
	roleNorm := Normalize(filters.Role)
	keywordNorm := Normalize(filters.Keyword)

	scored := make([]ScoredContact, 0, len(list))
	for _, c := range list {
		var (
			score float64
			why   []string
		)

		if companyNorm != "" {
			contactCompany := Normalize(c.Company)
			switch {
			case contactCompany == companyNorm:
				score += companyExactPoints
				why = append(why, fmt.Sprintf("Exact company match (%s).", c.Company))
			case contactCompany != "" && related(contactCompany, companyNorm):
				score += companyPartialPoints
				why = append(why, fmt.Sprintf("Company related to \"%s\".", filters.Company))
			}
		}

		if roleNorm != "" && c.Role != "" {
			contactRole := Normalize(c.Role)
			switch {
			case contactRole == roleNorm:
				score += roleExactPoints
				why = append(why, fmt.Sprintf("Role matches (%s).", c.Role))
			case contactRole != "" && related(contactRole, roleNorm):
				score += rolePartialPoints
				why = append(why, fmt.Sprintf("Role relevant to \"%s\".", filters.Role))
			}
		}

		if keywordNorm != "" && profileContains(c, keywordNorm) {
			score += keywordPoints
			why = append(why, fmt.Sprintf("Keyword \"%s\" found in profile.", filters.Keyword))
		}

		// Applies even when no filter matched.
		if rs := c.RelationshipStrength; rs != nil && *rs >= minRelationship && *rs <= maxRelationship {
			score += float64(*rs) * relationshipWeight
			why = append(why, fmt.Sprintf("Strong relationship (%d/%d).", *rs, maxRelationship))
		}

		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredContact{Contact: c, Score: score, WhyMatch: why})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > MaxResults {
		scored = scored[:MaxResults]
	}
	return scored
}

func related(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func profileContains(c models.Contact, keywordNorm string) bool {
	for _, field := range []string{c.FullName, c.Company, c.Role, c.Notes} {
		if strings.Contains(Normalize(field), keywordNorm) {
			return true
		}
	}
	return false
}
