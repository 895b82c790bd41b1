package rule

import (
	"strings"
	"unicode"

	"github.com/haulwise/rebate-claims/internal/domain/entity"
)

// minContainedLen keeps one- and two-letter fragments from matching half the registry.
const minContainedLen = 3

// NormalizeFacilityName lower-cases a name, turns punctuation into spaces and collapses whitespace.
func NormalizeFacilityName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, name)
	return strings.Join(strings.Fields(mapped), " ")
}

// MatchFacility resolves a free-text facility name against the registry.
//
// An exact normalized match wins. Otherwise the registry name must contain the
// claimed name or the other way round; ties go to the smallest length difference
// and then to the lowest id, so the result never depends on registry order.
// Returns nil on a miss.
func MatchFacility(claimed string, registry []*entity.ApprovedFacility) *entity.ApprovedFacility {
	needle := NormalizeFacilityName(claimed)
	if needle == "" {
		return nil
	}

	var best *entity.ApprovedFacility
	bestDiff := -1
	for _, f := range registry {
		if f == nil {
			continue
		}
		candidate := NormalizeFacilityName(f.Name)
		if candidate == "" {
			continue
		}
		if candidate == needle {
			if best == nil || bestDiff != 0 || f.ID < best.ID {
				best, bestDiff = f, 0
			}
			continue
		}
		if !containsEither(candidate, needle) {
			continue
		}
		diff := abs(len(candidate) - len(needle))
		if best == nil || diff < bestDiff || (diff == bestDiff && f.ID < best.ID) {
			best, bestDiff = f, diff
		}
	}
	return best
}

func containsEither(a, b string) bool {
	if len(b) >= minContainedLen && strings.Contains(a, b) {
		return true
	}
	return len(a) >= minContainedLen && strings.Contains(b, a)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
