// Package export copies practitioner records to Google Drive and to the CRM
// spreadsheet.
package export

import (
	"context"
	"errors"
)

var ErrDisabled = errors.New("google export is not configured")

// Sheet tabs of the CRM spreadsheet. Column A always holds the record id.
const (
	TabPatients = "Pacientes"
	TabReports  = "Informes"
	TabSessions = "Sesiones"
)

var headers = map[string][]interface{}{
	TabPatients: {"ID", "Nombre", "Email", "Teléfono", "Fecha de nacimiento", "Etiquetas", "Actualizado"},
	TabReports:  {"ID", "Paciente ID", "Paciente", "Título", "Tipo", "Estado", "Documento", "Creado"},
	TabSessions: {"ID", "Paciente ID", "Estado", "Origen", "Informe ID", "Creado"},
}

// Drive is the subset of the Google client used for export. *gdrive.Client
// implements it.
type Drive interface {
	FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error)
	CreateDocument(ctx context.Context, title, folderID, body string) (id, link string, err error)
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	WriteRange(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	AppendRows(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

type DocumentResult struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}

type SyncResult struct {
	Patients int `json:"patients"`
	Reports  int `json:"reports"`
	Sessions int `json:"sessions"`
}
