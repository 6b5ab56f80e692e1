package conciliation

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/glosas/glosas/internal/domain/glosa"
)

var minutesTemplate = template.Must(template.New("minutes").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"inc":   func(i int) int { return i + 1 },
}).Parse(`CONCILIATION MINUTES

Case:      {{.Case.ID}}
Batch:     {{.Case.BatchID}}
Mediator:  {{.Case.Mediator}}
Opened:    {{.Case.CreatedAt.Format "2006-01-02 15:04 MST"}}
Signed:    {{.Minutes.GeneratedAt.Format "2006-01-02 15:04 MST"}}

PARTICIPANTS
{{range .Minutes.Participants}}- {{.Name}}, {{.Role}}, identification {{.Identification}}{{with .Organization}} ({{.}}){{end}}
{{end}}
INVOICES
{{range .Case.Invoices}}- {{.Number}}  {{.ProviderName}}  objections: {{len .ObjectionIDs}}
{{end}}
DECISIONS
{{range .Minutes.Decisions}}- {{.InvoiceNumber}} {{.ReasonCode}}  disputed {{money .DisputedValue}}  accepted {{money .AcceptedValue}}  [{{.Status}}]{{with .Note}}  {{.}}{{end}}
{{end}}
FINANCIAL SUMMARY
Billed total:        {{money .Minutes.Summary.BilledTotal}}
Disputed total:      {{money .Minutes.Summary.DisputedTotal}}
Accepted total:      {{money .Minutes.Summary.AcceptedTotal}}
Ratified total:      {{money .Minutes.Summary.RatifiedTotal}}
Lifted total:        {{money .Minutes.Summary.LiftedTotal}}
Still in dispute:    {{money .Minutes.Summary.DisputedRemaining}}
Disputed / billed:   {{money .Minutes.Summary.PercentDisputed}}%
Ratified / disputed: {{money .Minutes.Summary.PercentRatified}}%

AGREEMENTS
{{range $i, $a := .Minutes.Agreements}}{{inc $i}}. {{$a}}
{{else}}None recorded.
{{end}}`))

// minutesLines lists each objection as it stands when the minutes are signed.
func minutesLines(objs []*glosa.Objection) []MinutesLine {
	out := make([]MinutesLine, len(objs))
	for i, o := range objs {
		status := string(o.ConciliationStatus)
		if status == "" {
			status = string(o.State)
		}
		out[i] = MinutesLine{
			ObjectionID:   o.ID,
			InvoiceNumber: o.InvoiceNumber,
			ReasonCode:    o.ReasonCode,
			DisputedValue: o.DisputedValue,
			AcceptedValue: o.AcceptedValue,
			Status:        status,
			Note:          o.ConciliationNote,
		}
	}
	return out
}

func renderMinutes(c *Case, m *Minutes) ([]byte, error) {
	var buf bytes.Buffer
	if err := minutesTemplate.Execute(&buf, struct {
		Case    *Case
		Minutes *Minutes
	}{c, m}); err != nil {
		return nil, fmt.Errorf("render minutes: %w", err)
	}
	return buf.Bytes(), nil
}
