package stages

import (
	"regexp"
	"strconv"
)

var (
	overallScoreRe = regexp.MustCompile(`(?i)OVERALL SCORE:\s*(\d+(?:\.\d+)?)\s*/\s*10`)
	scoreLineRe    = regexp.MustCompile(`(?i)\bSCORE:\s*(\d+(?:\.\d+)?)`)
	outOfTenRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10`)
	approveRe      = regexp.MustCompile(`(?i)VERDICT:\s*APPROVE`)
)

// extractScore pulls a 0-10 score out of free-form review text. Reviewers
// are instructed to emit a SCORE line but models drift, so two fallback
// patterns are tried before giving up.
func extractScore(review string) (float64, bool) {
	for _, re := range []*regexp.Regexp{overallScoreRe, scoreLineRe, outOfTenRe} {
		if m := re.FindStringSubmatch(review); m != nil {
			score, err := strconv.ParseFloat(m[1], 64)
			if err == nil && score >= 0 && score <= 10 {
				return score, true
			}
		}
	}
	return 0, false
}

// extractApproval reports whether the review carries an approving verdict.
func extractApproval(review string) bool {
	return approveRe.MatchString(review)
}
