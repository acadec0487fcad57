package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		gcp  config.GCPConfig
		bq   config.BigQueryConfig
		want error
	}{
		{gcp: config.GCPConfig{}, bq: config.BigQueryConfig{Dataset: "d", SummaryTable: "t"}, want: errProjectIDRequired},
		{gcp: config.GCPConfig{ProjectID: "p"}, bq: config.BigQueryConfig{SummaryTable: "t"}, want: errDatasetRequired},
		{gcp: config.GCPConfig{ProjectID: "p"}, bq: config.BigQueryConfig{Dataset: "d", SummaryTable: " "}, want: errTableNameRequired},
	}
	for _, tc := range cases {
		_, err := NewClient(ctx, tc.gcp, tc.bq, nil)
		require.ErrorIs(t, err, tc.want)
	}
}

func TestClientOptions(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestDescribeNotFound(t *testing.T) {
	err := describe("table", "audit_daily_summary", &googleapi.Error{Code: http.StatusNotFound})
	require.EqualError(t, err, `bigquery table "audit_daily_summary" does not exist`)

	cause := errors.New("permission denied")
	require.ErrorIs(t, describe("dataset", "reporting", cause), cause)
}

func TestSummarizePutError(t *testing.T) {
	require.NoError(t, summarizePutError("t", 3, nil))

	plain := errors.New("boom")
	require.Same(t, plain, summarizePutError("t", 3, plain))

	multi := bigquery.PutMultiError{
		{RowIndex: 0, Errors: bigquery.MultiError{fmt.Errorf("no such field: extra")}},
		{RowIndex: 2, Errors: bigquery.MultiError{fmt.Errorf("no such field: extra")}},
	}
	require.ErrorContains(t, summarizePutError("audit_daily_summary", 3, multi), "2 of 3 rows rejected")
}

func TestNilClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	require.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	require.Empty(t, c.SummaryTable())
	require.NoError(t, c.Close())
}
