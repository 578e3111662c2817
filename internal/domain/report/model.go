package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

var ErrNotFound = errors.New("report not found")

type Report struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name,omitempty"`
	Title       string    `db:"title" json:"title"`
	ReportType  string    `db:"report_type" json:"report_type"`
	Content     string    `db:"content" json:"content"`
	Model       string    `db:"model" json:"model"`
	Status      Status    `db:"status" json:"status"`
	DriveFileID *string   `db:"drive_file_id" json:"drive_file_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (r *Report) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.ReportType == "" {
		return fmt.Errorf("report_type is required")
	}
	switch r.Status {
	case StatusDraft, StatusCompleted:
	default:
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return nil
}

// ListFilter narrows a practitioner's report list.
type ListFilter struct {
	PatientID *uuid.UUID
}
