package notify

import (
	"strings"

	"github.com/clinicmail/clinicmail/internal/model"
)

// Copies are the carbon-copy recipients of one message
type Copies struct {
	Cc  []string
	Bcc []string
}

// ResolveCopies picks the copy recipients for templateID. Cc is always the
// global list. Bcc is the template's own list when it has one, otherwise the
// global default; the two are never merged. The returned slices are fresh.
func ResolveCopies(overrides model.RecipientOverrides, templateID string) Copies {
	c := Copies{
		Cc:  cloneStrings(overrides.GlobalCc),
		Bcc: []string{},
	}
	if bcc := overrides.PerTemplateBcc[templateID]; len(bcc) > 0 {
		c.Bcc = cloneStrings(bcc)
	} else if len(overrides.GlobalBcc) > 0 {
		c.Bcc = cloneStrings(overrides.GlobalBcc)
	}
	return c
}

// SplitAddresses parses a comma-separated address list, trimming entries and
// dropping empty ones.
func SplitAddresses(list string) []string {
	out := []string{}
	for _, part := range strings.Split(list, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
