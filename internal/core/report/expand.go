package report

import (
	"fmt"
	"strings"

	"github.com/planora-ai/planora/internal/models"
)

// sectionQuery is one leaf of the expanded template: a retrieval query plus
// the ordering key used later for assembly.
type sectionQuery struct {
	SectionTitle    string
	SubsectionTitle string
	Query           string
	Order           int
}

// expandTemplate flattens a template into ordered section queries. Parents
// come before their children: parent i gets order i*10, child j of parent i
// gets i*10 + j + 1, so assembly order is stable no matter which sections
// finish first.
func expandTemplate(tpl *models.ReportTemplate, topic, address, extra string) []sectionQuery {
	var out []sectionQuery
	for i, sec := range tpl.Sections {
		out = append(out, sectionQuery{
			SectionTitle: sec.Title,
			Query:        buildQuery(sec.Title, "", topic, address, extra),
			Order:        i * 10,
		})
		for j, sub := range sec.Subsections {
			out = append(out, sectionQuery{
				SectionTitle:    sec.Title,
				SubsectionTitle: sub,
				Query:           buildQuery(sec.Title, sub, topic, address, extra),
				Order:           i*10 + j + 1,
			})
		}
	}
	return out
}

// buildQuery composes the retrieval query for a section or subsection from
// its titles and the report parameters.
func buildQuery(section, subsection, topic, address, extra string) string {
	var b strings.Builder
	if subsection != "" {
		fmt.Fprintf(&b, "%s (%s)", subsection, section)
	} else {
		b.WriteString(section)
	}
	fmt.Fprintf(&b, " for %s", topic)
	if address != "" {
		fmt.Fprintf(&b, " at %s", address)
	}
	if extra != "" {
		fmt.Fprintf(&b, ". %s", extra)
	}
	return b.String()
}
