// Package bigquery exports derived reporting rows, currently the daily audit
// summary, to a BigQuery dataset.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

const probeTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type target struct {
	project string
	dataset string
	table   string
}

func targetFromConfig(gcp config.GCPConfig, cfg config.BigQueryConfig) (target, error) {
	t := target{
		project: strings.TrimSpace(gcp.ProjectID),
		dataset: strings.TrimSpace(cfg.Dataset),
		table:   strings.TrimSpace(cfg.SummaryTable),
	}
	switch {
	case t.project == "":
		return t, errProjectIDRequired
	case t.dataset == "":
		return t, errDatasetRequired
	case t.table == "":
		return t, errTableNameRequired
	}
	return t, nil
}

type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	summary string
}

// NewClient dials BigQuery and refuses to start when the dataset or the
// summary table is missing. Tables are provisioned by infra, not here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	t, err := targetFromConfig(gcp, cfg)
	if err != nil {
		return nil, err
	}
	bq, err := bigquery.NewClient(ctx, t.project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(t.dataset), summary: t.table}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": t.dataset, "table": t.table}), "bigquery.ready")
	}
	return c, nil
}

// clientOptions prefers inline JSON credentials over a key file. With neither
// set the client falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping checks that the dataset and summary table both resolve.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.summary).Metadata(ctx); err != nil {
		return describe("table", c.summary, err)
	}
	return nil
}

func describe(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("bigquery %s %q does not exist", kind, name)
	}
	return fmt.Errorf("bigquery %s %q: %w", kind, name, err)
}

func (c *Client) SummaryTable() string {
	if c == nil {
		return ""
	}
	return c.summary
}

// InsertRows streams rows into table. Rows implementing bigquery.ValueSaver
// control their own insert ids; plain structs are inferred by the client.
// A partial failure reports how many rows were rejected and the first reason.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	err := c.dataset.Table(table).Inserter().Put(ctx, rows)
	return summarizePutError(table, len(rows), err)
}

func summarizePutError(table string, total int, err error) error {
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) || len(multi) == 0 {
		return err
	}
	return fmt.Errorf("bigquery %s: %d of %d rows rejected, first: %w", table, len(multi), total, multi[0].Errors)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}
