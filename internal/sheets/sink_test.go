package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/garyjia/invoicebot/internal/models"
)

func newTestSink(t *testing.T, handler http.HandlerFunc) *Sink {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sink, err := NewSinkWithOptions(context.Background(), SinkConfig{
		SpreadsheetID: "sheet-1",
		Range:         "GT Invoices!A:F",
	}, zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return sink
}

func TestSink_Append(t *testing.T) {
	var (
		gotPath  string
		gotQuery map[string]string
		gotBody  sheets.ValueRange
	)

	sink := newTestSink(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"valueInputOption": r.URL.Query().Get("valueInputOption"),
			"insertDataOption": r.URL.Query().Get("insertDataOption"),
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRange":"'GT Invoices'!A7:F7","updatedRows":1}}`))
	})

	err := sink.Append(context.Background(), models.InvoiceRecord{
		InvoiceID:   "77",
		VendorName:  "Acme Ltd",
		Amount:      200,
		Currency:    "EUR",
		DateCreated: "01-01-2024",
		DueDate:     "15-01-2024",
	})
	require.NoError(t, err)

	assert.Contains(t, gotPath, "/v4/spreadsheets/sheet-1/values/")
	assert.Contains(t, gotPath, ":append")
	assert.Equal(t, "USER_ENTERED", gotQuery["valueInputOption"])
	assert.Equal(t, "INSERT_ROWS", gotQuery["insertDataOption"])

	require.Len(t, gotBody.Values, 1)
	assert.Equal(t, []interface{}{"77", "Acme Ltd", 200.0, "EUR", "01-01-2024", "15-01-2024"}, gotBody.Values[0])
}

func TestSink_AppendRejected(t *testing.T) {
	sink := newTestSink(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
	})

	err := sink.Append(context.Background(), models.InvoiceRecord{InvoiceID: "1"})
	assert.ErrorContains(t, err, "failed to append row")
}

func TestNewSink_RequiresCredentials(t *testing.T) {
	_, err := NewSink(context.Background(), SinkConfig{SpreadsheetID: "x", Range: "A:F"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewSink(context.Background(), SinkConfig{
		SpreadsheetID:   "x",
		Range:           "A:F",
		CredentialsFile: t.TempDir() + "/missing.json",
	}, zap.NewNop())
	assert.ErrorContains(t, err, "failed to read credentials file")
}

func TestParseSpreadsheetID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1AbC-d_E", "1AbC-d_E", false},
		{"https://docs.google.com/spreadsheets/d/1AbC-d_E/edit#gid=0", "1AbC-d_E", false},
		{"https://example.com/not/a/sheet", "", true},
		{"  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSpreadsheetID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
