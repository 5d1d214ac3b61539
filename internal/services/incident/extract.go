package incident

import (
	"regexp"
	"strings"
)

// incidentPattern matches tokens like INC0012345 or inc-12345. The id body is
// 4 to 7 digits.
var incidentPattern = regexp.MustCompile(`(?i)\bINC-?(\d{4,7})\b`)

// ExtractIncidentIDs scans raw text for literal incident identifiers and
// returns them normalized (upper-case, dash stripped) and de-duplicated in
// order of first appearance. The output is advisory: the classifier derives
// the authoritative incident id from conversational context and may disagree.
func ExtractIncidentIDs(text string) []string {
	matches := incidentPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var ids []string
	for _, m := range matches {
		id := "INC" + m[1]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// NormalizeIncidentID upper-cases an id and strips the optional dash so
// "inc-0012345" and "INC0012345" compare equal
func NormalizeIncidentID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	return strings.Replace(id, "INC-", "INC", 1)
}
