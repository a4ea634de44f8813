package apiclient

import (
	"regexp"
	"strings"
)

const (
	// MaxSkillsLen is the longest skills string sent to generation endpoints.
	MaxSkillsLen = 500
	// MaxRoleLen is the longest job role sent to generation endpoints.
	MaxRoleLen = 100
)

var (
	skillsDisallowed = regexp.MustCompile(`[^\w\s,.-]`)
	roleDisallowed   = regexp.MustCompile(`[^\w\s.-]`)
	spaces           = regexp.MustCompile(`\s+`)
)

// SanitizeSkills strips characters the generation endpoints reject and
// truncates to MaxSkillsLen.
func SanitizeSkills(s string) string {
	return sanitize(s, skillsDisallowed, MaxSkillsLen)
}

// SanitizeRole strips characters the generation endpoints reject and
// truncates to MaxRoleLen.
func SanitizeRole(s string) string {
	return sanitize(s, roleDisallowed, MaxRoleLen)
}

// JoinSkills joins a skill list into the comma-separated form the API expects.
func JoinSkills(skills []string) string {
	cleaned := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return SanitizeSkills(strings.Join(cleaned, ", "))
}

func sanitize(s string, disallowed *regexp.Regexp, limit int) string {
	s = disallowed.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	if r := []rune(s); len(r) > limit {
		s = strings.TrimSpace(string(r[:limit]))
	}
	return s
}
