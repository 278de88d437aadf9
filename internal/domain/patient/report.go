package patient

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

var operativeReport = template.Must(template.New("operative-report").Parse(`OPERATIVE REPORT
Date: {{.Date}}

Patient: {{.Name}} (IPP {{.IPP}}), {{.Age}} years
Surgeon: {{.Surgeon}}
Diagnosis: {{.Diagnosis}}
Procedure: {{.Procedure}}

Installation: supine position on orthopaedic table, tourniquet as required.
Antibiotic prophylaxis given at induction.
Skin preparation with povidone-iodine, sterile draping.
Approach, reduction and fixation as per procedure above.
Intra-operative fluoroscopic control satisfactory.
Closure in layers, sterile dressing.

Post-operative instructions: elevation, analgesia, thromboprophylaxis,
wound check at day 2, clinical and radiological follow-up.
`))

type reportData struct {
	Date      string
	Name      string
	IPP       string
	Age       int
	Surgeon   string
	Diagnosis string
	Procedure string
}

// RenderOperativeReport fills the fixed operative report boilerplate with the
// patient's fields.
func RenderOperativeReport(p *Patient, at time.Time) (string, error) {
	surgeon := p.Surgeon
	if surgeon == "" {
		surgeon = "not recorded"
	}
	var b strings.Builder
	err := operativeReport.Execute(&b, reportData{
		Date:      at.Format("02/01/2006"),
		Name:      p.Name,
		IPP:       p.IPP,
		Age:       p.Age,
		Surgeon:   surgeon,
		Diagnosis: p.Diagnosis,
		Procedure: p.Procedure.Display(),
	})
	if err != nil {
		return "", fmt.Errorf("render operative report: %w", err)
	}
	return b.String(), nil
}
