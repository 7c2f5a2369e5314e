package sheets

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/susu3304/warikanbot/internal/ledger"
)

type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	appended map[string][][]interface{}
	gets     int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		f.gets++
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.titles = append(f.titles, req.Requests[0].AddSheet.Properties.Title)
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := strings.TrimSuffix(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], ":append")
		sheet := strings.SplitN(rng, "!", 2)[0]
		f.appended[sheet] = append(f.appended[sheet], vr.Values...)
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func newFakeClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewWithService(svc, "sheet-id", slog.Default())
}

func sampleExpense() ledger.Expense {
	return ledger.Expense{
		ID:            "e1",
		CreatedAt:     time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		Description:   "dinner",
		Amount:        9000,
		Payer:         "A",
		Beneficiaries: []string{"A", "B", "C"},
		Share:         3000,
	}
}

func TestRow(t *testing.T) {
	require.Equal(t,
		[]interface{}{"2025-05-01T12:00:00Z", "dinner", "90.00", "A", "A, B, C", "30.00"},
		Row(sampleExpense()))
	require.Equal(t, "Chat_-100123", WorksheetName("-100123"))
}

func TestExport_CreatesWorksheetOnce(t *testing.T) {
	req := require.New(t)
	fake := &fakeSheets{appended: map[string][][]interface{}{}}
	c := newFakeClient(t, fake)
	ctx := context.Background()

	req.NoError(c.Export(ctx, "chan-1", sampleExpense()))
	req.NoError(c.Export(ctx, "chan-1", sampleExpense()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	req.Equal([]string{"Chat_chan-1"}, fake.titles)
	req.Equal(1, fake.gets)
	rows := fake.appended["Chat_chan-1"]
	req.Len(rows, 3)
	req.Equal("When", rows[0][0])
	req.Equal("dinner", rows[1][1])
}

func TestExport_ExistingWorksheet(t *testing.T) {
	req := require.New(t)
	fake := &fakeSheets{titles: []string{"Chat_chan-2"}, appended: map[string][][]interface{}{}}
	c := newFakeClient(t, fake)

	req.NoError(c.Export(context.Background(), "chan-2", sampleExpense()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	req.Len(fake.titles, 1)
	req.Len(fake.appended["Chat_chan-2"], 1)
}
