package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/planora-ai/planora/internal/models"
)

// Assemble renders the final document: completed sections in section_order,
// top-level titles as headings and subsections as sub-headings. Sections
// without generated content are noted rather than silently omitted, so a
// partially failed report is still readable.
func Assemble(rep *models.ReportGeneration, sections []models.ReportSection) string {
	ordered := make([]models.ReportSection, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SectionOrder < ordered[j].SectionOrder
	})

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", rep.Topic)
	if rep.Address != "" {
		fmt.Fprintf(&b, "\n%s\n", rep.Address)
	}

	for _, sec := range ordered {
		if sec.SubsectionTitle == "" {
			fmt.Fprintf(&b, "\n## %s\n", sec.SectionTitle)
		} else {
			fmt.Fprintf(&b, "\n### %s\n", sec.SubsectionTitle)
		}

		switch {
		case sec.Status == models.StatusCompleted && sec.Content != "":
			fmt.Fprintf(&b, "\n%s\n", sec.Content)
		case sec.Status == models.StatusFailed:
			b.WriteString("\n*This section could not be generated.*\n")
		}
	}
	return b.String()
}
