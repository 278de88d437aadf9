package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is where the patient currently is in the ward pathway. Any status may
// follow any other.
type Status string

const (
	StatusHospitalized  Status = "hospitalized"
	StatusOperatingRoom Status = "operating-room"
	StatusPostOp        Status = "post-op"
	StatusPACU          Status = "pacu"
	StatusDischarged    Status = "discharged"
	StatusConsolidated  Status = "consolidated"
	StatusDeceased      Status = "deceased"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusHospitalized, StatusOperatingRoom, StatusPostOp, StatusPACU,
	StatusDischarged, StatusConsolidated, StatusDeceased,
}

func (s Status) Valid() bool {
	switch s {
	case StatusHospitalized, StatusOperatingRoom, StatusPostOp, StatusPACU,
		StatusDischarged, StatusConsolidated, StatusDeceased:
		return true
	}
	return false
}

// Active reports whether a patient in this status counts as an active ward
// patient on the dashboard.
func (s Status) Active() bool {
	switch s {
	case StatusHospitalized, StatusOperatingRoom, StatusPostOp:
		return true
	case StatusPACU, StatusDischarged, StatusConsolidated, StatusDeceased:
		return false
	}
	return false
}

// Complication is a flagged adverse clinical event. ComplicationNone is the
// "RAS" (nothing to report) value.
type Complication string

const (
	ComplicationNone             Complication = "none"
	ComplicationInfection        Complication = "infection"
	ComplicationThrombosis       Complication = "thrombosis"
	ComplicationPressureSore     Complication = "pressure-sore"
	ComplicationSutureDehiscence Complication = "suture-dehiscence"
	ComplicationShock            Complication = "shock"
	ComplicationDeath            Complication = "death"
)

var Complications = []Complication{
	ComplicationNone, ComplicationInfection, ComplicationThrombosis, ComplicationPressureSore,
	ComplicationSutureDehiscence, ComplicationShock, ComplicationDeath,
}

func (c Complication) Valid() bool {
	switch c {
	case ComplicationNone, ComplicationInfection, ComplicationThrombosis, ComplicationPressureSore,
		ComplicationSutureDehiscence, ComplicationShock, ComplicationDeath:
		return true
	}
	return false
}

// Procedure is the surgical act performed.
type Procedure string

const (
	ProcedureNailing         Procedure = "nailing"
	ProcedurePlate           Procedure = "plate"
	ProcedureProsthesis      Procedure = "prosthesis"
	ProcedureExternalFixator Procedure = "external-fixator"
	ProcedureOther           Procedure = "other"
)

var Procedures = []Procedure{
	ProcedureNailing, ProcedurePlate, ProcedureProsthesis, ProcedureExternalFixator, ProcedureOther,
}

func (p Procedure) Valid() bool {
	switch p {
	case ProcedureNailing, ProcedurePlate, ProcedureProsthesis, ProcedureExternalFixator, ProcedureOther:
		return true
	}
	return false
}

// Display returns the label used in the operative report.
func (p Procedure) Display() string {
	switch p {
	case ProcedureNailing:
		return "Intramedullary nailing"
	case ProcedurePlate:
		return "Plate osteosynthesis"
	case ProcedureProsthesis:
		return "Prosthesis"
	case ProcedureExternalFixator:
		return "External fixator"
	case ProcedureOther:
		return "Other procedure"
	}
	return string(p)
}

type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale:
		return true
	}
	return false
}

// KnownSurgeons are offered as suggestions; surgeon stays free text.
var KnownSurgeons = []string{"Pr Lamah", "Dr Senior", "Dr Samaké"}

// AdmissionNote is the first evolution entry of every patient.
const AdmissionNote = "Day 0: Admission"

// EvolutionEntry is one line of the clinical progress log.
type EvolutionEntry struct {
	RecordedAt time.Time `json:"recorded_at"`
	Text       string    `json:"text"`
}

// String renders the entry the way the ward journal shows it: "[18/10 09h] text".
func (e EvolutionEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.RecordedAt.Format("02/01 15h"), e.Text)
}

// Encode renders the entry with a full RFC 3339 timestamp for lossless storage.
func (e EvolutionEntry) Encode() string {
	return fmt.Sprintf("[%s] %s", e.RecordedAt.UTC().Format(time.RFC3339), e.Text)
}

// DecodeEntry parses a line produced by Encode.
func DecodeEntry(line string) (EvolutionEntry, error) {
	if !strings.HasPrefix(line, "[") {
		return EvolutionEntry{}, fmt.Errorf("evolution entry %q: missing timestamp", line)
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return EvolutionEntry{}, fmt.Errorf("evolution entry %q: unterminated timestamp", line)
	}
	at, err := time.Parse(time.RFC3339, line[1:end])
	if err != nil {
		return EvolutionEntry{}, fmt.Errorf("evolution entry %q: %w", line, err)
	}
	return EvolutionEntry{RecordedAt: at, Text: line[end+2:]}, nil
}

// EncodeLog joins a log with newlines; notes themselves are single-line.
func EncodeLog(entries []EvolutionEntry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Encode()
	}
	return strings.Join(lines, "\n")
}

func DecodeLog(s string) ([]EvolutionEntry, error) {
	if s == "" {
		return nil, nil
	}
	var entries []EvolutionEntry
	for _, line := range strings.Split(s, "\n") {
		e, err := DecodeEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Image is an attached clinical photo or x-ray capture.
type Image struct {
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	AttachedAt  time.Time `json:"attached_at"`
}

// Patient maps to the patient table.
type Patient struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	IPP           string           `db:"ipp" json:"ipp"`
	AdmissionDate time.Time        `db:"admission_date" json:"admission_date"`
	Name          string           `db:"name" json:"name"`
	Age           int              `db:"age" json:"age"`
	Sex           Sex              `db:"sex" json:"sex"`
	Diagnosis     string           `db:"diagnosis" json:"diagnosis"`
	Procedure     Procedure        `db:"procedure" json:"procedure"`
	Surgeon       string           `db:"surgeon" json:"surgeon"`
	Status        Status           `db:"status" json:"status"`
	EvolutionLog  []EvolutionEntry `db:"evolution_log" json:"evolution_log"`
	Complication  Complication     `db:"complication" json:"complication"`
	Report        *string          `db:"report" json:"report,omitempty"`
	Image         *Image           `db:"-" json:"image,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// HasComplication reports whether an active complication is flagged.
func (p *Patient) HasComplication() bool {
	return p.Complication != ComplicationNone && p.Complication != ""
}

// Clone returns a deep copy so callers never share the log slice or image with
// the repository.
func (p *Patient) Clone() *Patient {
	cp := *p
	cp.EvolutionLog = append([]EvolutionEntry(nil), p.EvolutionLog...)
	if p.Report != nil {
		r := *p.Report
		cp.Report = &r
	}
	if p.Image != nil {
		img := *p.Image
		img.Data = append([]byte(nil), p.Image.Data...)
		cp.Image = &img
	}
	return &cp
}
