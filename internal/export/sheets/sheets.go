package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/logging"
)

// Header is written as the first row of every new worksheet.
var Header = []interface{}{"When", "Description", "Amount", "Payer", "Group", "Share"}

var _ ledger.Exporter = (*Client)(nil)

// Client appends committed expenses to one worksheet per chat.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	log           *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

type Credentials struct {
	SpreadsheetID      string
	ServiceAccountFile string
	ServiceAccountJSON string
}

// New creates a Sheets client authenticated with a service account.
// GOOGLE_APPLICATION_CREDENTIALS is used when neither file nor JSON is given.
func New(ctx context.Context, creds Credentials, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(creds.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	credentialsJSON, err := loadCredentials(creds)
	if err != nil {
		return nil, err
	}
	if credentialsJSON != nil {
		opts = append(opts, goption.WithCredentialsJSON(credentialsJSON))
	}
	opts = append(opts, goption.WithScopes(gsheet.SpreadsheetsScope))
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, creds.SpreadsheetID, slog.Default()), nil
}

func NewWithService(svc *gsheet.Service, spreadsheetID string, log *slog.Logger) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		log:           log.With("component", logging.ComponentSheets),
		known:         make(map[string]bool),
	}
}

func loadCredentials(creds Credentials) ([]byte, error) {
	if js := strings.TrimSpace(creds.ServiceAccountJSON); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(creds.ServiceAccountFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// WorksheetName returns the tab used for a chat.
func WorksheetName(sessionID string) string {
	return "Chat_" + sessionID
}

// Row renders an expense in Header order.
func Row(e ledger.Expense) []interface{} {
	return []interface{}{
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.Description,
		e.Amount.String(),
		e.Payer,
		strings.Join(e.Beneficiaries, ", "),
		e.Share.String(),
	}
}

func (c *Client) Export(ctx context.Context, sessionID string, e ledger.Expense) error {
	sheet := WorksheetName(sessionID)
	if err := c.ensureWorksheet(ctx, sheet); err != nil {
		return err
	}
	if err := c.append(ctx, sheet, Row(e)); err != nil {
		return fmt.Errorf("append expense: %w", err)
	}
	c.log.InfoContext(ctx, "expense exported", "sheet", sheet, "expense_id", e.ID)
	return nil
}

func (c *Client) ensureWorksheet(ctx context.Context, sheet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[sheet] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			c.known[sheet] = true
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{
					Title: sheet,
					GridProperties: &gsheet.GridProperties{
						RowCount:    1000,
						ColumnCount: 10,
					},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add worksheet %s: %w", sheet, err)
	}
	if err := c.append(ctx, sheet, Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	c.log.InfoContext(ctx, "worksheet created", "sheet", sheet)
	c.known[sheet] = true
	return nil
}

func (c *Client) append(ctx context.Context, sheet string, row []interface{}) error {
	vr := &gsheet.ValueRange{Values: [][]interface{}{row}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
