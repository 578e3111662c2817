package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"github.com/informia/informia/internal/domain/patient"
	"github.com/informia/informia/internal/domain/profile"
	"github.com/informia/informia/internal/domain/report"
	"github.com/informia/informia/internal/domain/session"
)

const (
	sheetDate   = "2006-01-02"
	maxSyncRows = 500
)

type Reports interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*report.Report, error)
	List(ctx context.Context, userID uuid.UUID, f report.ListFilter, limit, offset int) ([]*report.Report, int, error)
	SetDriveFile(ctx context.Context, userID, id uuid.UUID, fileID string) error
}

type Patients interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*patient.Patient, error)
}

type Sessions interface {
	ListByPatient(ctx context.Context, userID, patientID uuid.UUID, limit, offset int) ([]*session.Draft, int, error)
}

type Profiles interface {
	Get(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
}

type Config struct {
	// RootFolderID is the Drive folder practitioner folders are created
	// under. Empty means the service account's drive root.
	RootFolderID string
	SheetID      string
}

type Service struct {
	drive    Drive
	reports  Reports
	patients Patients
	sessions Sessions
	profiles Profiles
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(drive Drive, reports Reports, patients Patients, sessions Sessions, profiles Profiles, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		drive:    drive,
		reports:  reports,
		patients: patients,
		sessions: sessions,
		profiles: profiles,
		cfg:      cfg,
		logger:   logger.With().Str("component", "export").Logger(),
		now:      time.Now,
	}
}

// practitionerFolder names the top-level folder of a practitioner.
func practitionerFolder(p *profile.Profile) string {
	name := strings.TrimSpace(p.FullName)
	if name == "" {
		name = p.Email
	}
	return "iNFORiA - " + name
}

// DocumentTitle is the Drive file name of a report export.
func DocumentTitle(patientName string, at time.Time) string {
	s := slug.Make(patientName)
	if s == "" {
		s = "paciente"
	}
	return s + "-" + at.Format(sheetDate)
}

// ExportReport writes a report into a Google Doc under the practitioner and
// patient folders and records the file on the report. When a CRM sheet is
// configured the report row is upserted too; a sheet failure is logged and
// does not fail the export.
func (s *Service) ExportReport(ctx context.Context, userID, reportID uuid.UUID) (*DocumentResult, error) {
	r, err := s.reports.Get(ctx, userID, reportID)
	if err != nil {
		return nil, err
	}
	pat, err := s.patients.Get(ctx, userID, r.PatientID)
	if err != nil {
		return nil, err
	}
	prof, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	root, err := s.drive.FindOrCreateFolder(ctx, practitionerFolder(prof), s.cfg.RootFolderID)
	if err != nil {
		return nil, err
	}
	folder, err := s.drive.FindOrCreateFolder(ctx, pat.Name, root)
	if err != nil {
		return nil, err
	}

	body := r.Title + "\n\n" + r.Content
	fileID, link, err := s.drive.CreateDocument(ctx, DocumentTitle(pat.Name, s.now()), folder, body)
	if err != nil {
		return nil, err
	}
	if err := s.reports.SetDriveFile(ctx, userID, r.ID, fileID); err != nil {
		return nil, err
	}
	r.DriveFileID = &fileID

	s.logger.Info().Str("user_id", userID.String()).Str("report_id", r.ID.String()).Str("file_id", fileID).Msg("report exported")

	if s.cfg.SheetID != "" {
		if err := upsertRow(ctx, s.drive, s.cfg.SheetID, TabReports, reportRow(r, pat)); err != nil {
			s.logger.Warn().Err(err).Str("report_id", r.ID.String()).Msg("crm sheet update failed")
		}
	}
	return &DocumentResult{FileID: fileID, URL: link}, nil
}

// SyncPatient upserts the patient with its reports and sessions into the CRM
// sheet.
func (s *Service) SyncPatient(ctx context.Context, userID, patientID uuid.UUID) (*SyncResult, error) {
	if s.cfg.SheetID == "" {
		return nil, ErrDisabled
	}
	pat, err := s.patients.Get(ctx, userID, patientID)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	if err := upsertRow(ctx, s.drive, s.cfg.SheetID, TabPatients, patientRow(pat)); err != nil {
		return nil, fmt.Errorf("sync patient: %w", err)
	}
	res.Patients = 1

	reports, _, err := s.reports.List(ctx, userID, report.ListFilter{PatientID: &pat.ID}, maxSyncRows, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		if err := upsertRow(ctx, s.drive, s.cfg.SheetID, TabReports, reportRow(r, pat)); err != nil {
			return res, fmt.Errorf("sync report %s: %w", r.ID, err)
		}
		res.Reports++
	}

	drafts, _, err := s.sessions.ListByPatient(ctx, userID, pat.ID, maxSyncRows, 0)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if err := upsertRow(ctx, s.drive, s.cfg.SheetID, TabSessions, sessionRow(d)); err != nil {
			return res, fmt.Errorf("sync session %s: %w", d.ID, err)
		}
		res.Sessions++
	}

	s.logger.Info().Str("user_id", userID.String()).Str("patient_id", pat.ID.String()).
		Int("reports", res.Reports).Int("sessions", res.Sessions).Msg("patient synced")
	return res, nil
}

func patientRow(p *patient.Patient) []interface{} {
	birth := ""
	if p.BirthDate != nil {
		birth = p.BirthDate.Format(sheetDate)
	}
	return []interface{}{p.ID.String(), p.Name, p.Email, p.Phone, birth, strings.Join(p.Tags, ", "), p.UpdatedAt.UTC().Format(time.RFC3339)}
}

func reportRow(r *report.Report, p *patient.Patient) []interface{} {
	doc := ""
	if r.DriveFileID != nil {
		doc = "https://docs.google.com/document/d/" + *r.DriveFileID
	}
	return []interface{}{r.ID.String(), p.ID.String(), p.Name, r.Title, r.ReportType, string(r.Status), doc, r.CreatedAt.UTC().Format(time.RFC3339)}
}

func sessionRow(d *session.Draft) []interface{} {
	reportID := ""
	if d.ReportID != nil {
		reportID = d.ReportID.String()
	}
	return []interface{}{d.ID.String(), d.PatientID.String(), string(d.State), string(d.Source), reportID, d.CreatedAt.UTC().Format(time.RFC3339)}
}
