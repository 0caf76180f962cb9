package compose

import "strings"

// ParseExtraEmails splits a comma separated field, trimming entries and
// dropping empty ones
func ParseExtraEmails(extra string) []string {
	var out []string
	for _, part := range strings.Split(extra, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MergeRecipients returns the deduplicated union of the selected emails and
// the extra emails field. Selected emails come first, order is preserved.
func MergeRecipients(selected []string, extra string) []string {
	seen := make(map[string]struct{}, len(selected))
	var out []string

	add := func(email string) {
		email = strings.TrimSpace(email)
		if email == "" {
			return
		}
		if _, ok := seen[email]; ok {
			return
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}

	for _, email := range selected {
		add(email)
	}
	for _, email := range ParseExtraEmails(extra) {
		add(email)
	}
	return out
}
