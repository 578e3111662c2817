// Package gdrive adapts the Drive, Docs and Sheets APIs to the handful of
// calls the export feature needs.
package gdrive

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	documentMimeType = "application/vnd.google-apps.document"
)

type Client struct {
	drive  *drive.Service
	docs   *docs.Service
	sheets *sheets.Service
}

// New authenticates with a service account credentials file.
func New(ctx context.Context, credentialsFile string) (*Client, error) {
	opts := []option.ClientOption{
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope, docs.DocumentsScope, sheets.SpreadsheetsScope),
	}

	d, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	dc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create docs service: %w", err)
	}
	s, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{drive: d, docs: dc, sheets: s}, nil
}

// FindOrCreateFolder returns the id of the folder called name under parentID,
// creating it when absent. An empty parentID means the drive root.
func (c *Client) FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	parent := parentID
	if parent == "" {
		parent = "root"
	}
	q := fmt.Sprintf("mimeType = '%s' and name = '%s' and '%s' in parents and trashed = false",
		folderMimeType, escapeQuery(name), escapeQuery(parent))

	list, err := c.drive.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := c.drive.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parent},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return folder.Id, nil
}

// CreateDocument creates a Google Doc inside folderID and writes body into it.
// It returns the document id and its web link.
func (c *Client) CreateDocument(ctx context.Context, title, folderID, body string) (string, string, error) {
	file, err := c.drive.Files.Create(&drive.File{
		Name:     title,
		MimeType: documentMimeType,
		Parents:  []string{folderID},
	}).Fields("id", "webViewLink").Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("create document %q: %w", title, err)
	}

	if body != "" {
		_, err = c.docs.Documents.BatchUpdate(file.Id, &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     body,
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return file.Id, file.WebViewLink, fmt.Errorf("write document body: %w", err)
		}
	}
	return file.Id, file.WebViewLink, nil
}

// ReadRange returns the cell values of a range such as "Pacientes!A:A".
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := c.sheets.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) WriteRange(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := c.sheets.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}

func (c *Client) AppendRows(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := c.sheets.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", rng, err)
	}
	return nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
