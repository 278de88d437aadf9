package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/internal/platform/events"
)

// Event types published by the registry.
const (
	EventAdmitted             = "patient.admitted"
	EventNoteAppended         = "patient.note_appended"
	EventStatusChanged        = "patient.status_changed"
	EventComplicationDeclared = "patient.complication_declared"
	EventComplicationResolved = "patient.complication_resolved"
	EventImageAttached        = "patient.image_attached"
	EventReportSet            = "patient.report_set"
)

// MaxImageSize caps an attached image at 10 MB.
const MaxImageSize = 10 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Service is the patient registry. It is the only writer of patient records.
type Service struct {
	patients Repository
	events   events.Publisher
	now      func() time.Time
}

func NewService(patients Repository, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{patients: patients, events: pub, now: time.Now}
}

func (s *Service) publish(ctx context.Context, eventType string, p *Patient, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["patient_id"] = p.ID.String()
	_ = s.events.Publish(ctx, events.New(eventType, p.IPP, data))
}

// Admit registers a new patient. The record starts hospitalized, without
// complication, with a single "Day 0: Admission" evolution entry.
func (s *Service) Admit(ctx context.Context, p *Patient) error {
	p.IPP = strings.TrimSpace(p.IPP)
	p.Name = domain.NormalizeText(strings.TrimSpace(p.Name))
	p.Diagnosis = domain.NormalizeText(p.Diagnosis)
	p.Surgeon = domain.NormalizeText(p.Surgeon)
	if p.IPP == "" {
		return domain.Invalid("ipp is required")
	}
	if p.Name == "" {
		return domain.Invalid("name is required")
	}
	if p.Age < 0 {
		return domain.Invalid("age must not be negative")
	}
	if p.Sex == "" {
		p.Sex = SexMale
	}
	if !p.Sex.Valid() {
		return domain.Invalid("invalid sex: %s", p.Sex)
	}
	if p.Procedure == "" {
		p.Procedure = ProcedureOther
	}
	if !p.Procedure.Valid() {
		return domain.Invalid("invalid procedure: %s", p.Procedure)
	}

	now := s.now()
	if p.AdmissionDate.IsZero() {
		p.AdmissionDate = now
	}
	p.AdmissionDate = truncateDay(p.AdmissionDate)
	p.Status = StatusHospitalized
	p.Complication = ComplicationNone
	p.EvolutionLog = []EvolutionEntry{{RecordedAt: now, Text: AdmissionNote}}

	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.publish(ctx, EventAdmitted, p, map[string]interface{}{
		"name":      p.Name,
		"procedure": string(p.Procedure),
		"surgeon":   p.Surgeon,
	})
	return nil
}

// Restore inserts a record exactly as given, keeping its status, complication
// and evolution log.
func (s *Service) Restore(ctx context.Context, p *Patient) error {
	return s.RestoreAll(ctx, []*Patient{p})
}

// RestoreAll inserts a batch of records read back from an export. Every record
// is checked before the first write, and the batch is stored as a whole or not
// at all.
func (s *Service) RestoreAll(ctx context.Context, ps []*Patient) error {
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if err := validateRestored(p); err != nil {
			return fmt.Errorf("patient %s: %w", p.IPP, err)
		}
		if seen[p.IPP] {
			return domain.Invalid("ipp %q appears twice", p.IPP)
		}
		seen[p.IPP] = true
	}
	return s.patients.CreateAll(ctx, ps)
}

func validateRestored(p *Patient) error {
	if strings.TrimSpace(p.IPP) == "" || strings.TrimSpace(p.Name) == "" {
		return domain.Invalid("ipp and name are required")
	}
	if !p.Status.Valid() {
		return domain.Invalid("invalid status: %s", p.Status)
	}
	if !p.Complication.Valid() {
		return domain.Invalid("invalid complication: %s", p.Complication)
	}
	if !p.Procedure.Valid() {
		return domain.Invalid("invalid procedure: %s", p.Procedure)
	}
	if !p.Sex.Valid() {
		return domain.Invalid("invalid sex: %s", p.Sex)
	}
	if p.Age < 0 {
		return domain.Invalid("age must not be negative")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetByIPP(ctx context.Context, ipp string) (*Patient, error) {
	return s.patients.GetByIPP(ctx, ipp)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) All(ctx context.Context) ([]*Patient, error) {
	return s.patients.All(ctx)
}

// AppendNote adds one timestamped entry to the evolution log. Earlier entries
// are never touched.
func (s *Service) AppendNote(ctx context.Context, id uuid.UUID, text string, at time.Time) (*Patient, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil, domain.Invalid("note text is required")
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.patients.AppendEvolution(ctx, id, EvolutionEntry{RecordedAt: at, Text: text}); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventNoteAppended, p, map[string]interface{}{"entries": len(p.EvolutionLog)})
	return p, nil
}

// SetStatus overwrites the status. No transition rules apply.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Patient, error) {
	if !status.Valid() {
		return nil, domain.Invalid("invalid status: %s", status)
	}
	if err := s.patients.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventStatusChanged, p, map[string]interface{}{"status": string(status)})
	return p, nil
}

// DeclareComplication flags a complication. Declaring ComplicationNone leaves
// the current value in place; use ResolveComplication to clear it.
func (s *Service) DeclareComplication(ctx context.Context, id uuid.UUID, kind Complication) (*Patient, error) {
	if !kind.Valid() {
		return nil, domain.Invalid("invalid complication: %s", kind)
	}
	if kind == ComplicationNone {
		return s.patients.GetByID(ctx, id)
	}
	if err := s.patients.SetComplication(ctx, id, kind); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventComplicationDeclared, p, map[string]interface{}{"complication": string(kind)})
	return p, nil
}

// ResolveComplication clears an active complication and records the resolution
// in the evolution log.
func (s *Service) ResolveComplication(ctx context.Context, id uuid.UUID, note string) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.HasComplication() {
		return nil, domain.Invalid("patient %s has no active complication", p.IPP)
	}
	previous := p.Complication
	if err := s.patients.SetComplication(ctx, id, ComplicationNone); err != nil {
		return nil, err
	}
	text := "Complication resolved: " + string(previous)
	if note = strings.Join(strings.Fields(note), " "); note != "" {
		text += " (" + note + ")"
	}
	if err := s.patients.AppendEvolution(ctx, id, EvolutionEntry{RecordedAt: s.now(), Text: text}); err != nil {
		return nil, err
	}
	p, err = s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventComplicationResolved, p, map[string]interface{}{"complication": string(previous)})
	return p, nil
}

// AttachImage stores an image on the record, replacing any previous one.
func (s *Service) AttachImage(ctx context.Context, id uuid.UUID, data []byte, contentType string) error {
	if len(data) == 0 {
		return domain.Invalid("image is empty")
	}
	if len(data) > MaxImageSize {
		return domain.Invalid("image exceeds %d bytes", MaxImageSize)
	}
	if !allowedImageTypes[contentType] {
		return domain.Invalid("content type %q is not allowed", contentType)
	}
	img := &Image{ContentType: contentType, Data: data, AttachedAt: s.now().UTC()}
	if err := s.patients.SetImage(ctx, id, img); err != nil {
		return err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, EventImageAttached, p, map[string]interface{}{"content_type": contentType, "size": len(data)})
	return nil
}

// SetReport overwrites the free-text report.
func (s *Service) SetReport(ctx context.Context, id uuid.UUID, text string) (*Patient, error) {
	text = domain.NormalizeText(text)
	if err := s.patients.SetReport(ctx, id, text); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventReportSet, p, nil)
	return p, nil
}

// GenerateReport renders the operative report for the patient and stores it.
func (s *Service) GenerateReport(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	text, err := RenderOperativeReport(p, s.now())
	if err != nil {
		return nil, err
	}
	return s.SetReport(ctx, id, text)
}

// ActivePatients returns patients still in the ward pathway.
func (s *Service) ActivePatients(ctx context.Context) ([]*Patient, error) {
	var active []Status
	for _, st := range Statuses {
		if st.Active() {
			active = append(active, st)
		}
	}
	return s.patients.ListByStatus(ctx, active)
}

func (s *Service) PatientsWithComplications(ctx context.Context) ([]*Patient, error) {
	return s.patients.ListWithComplication(ctx)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
