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

	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// ArchiveSchema is the layout of the outbox archive table. Rows are
// partitioned by the day they were sent.
func ArchiveSchema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "id", Type: bigquery.StringFieldType, Required: true},
		{Name: "aggregate_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "aggregate_type", Type: bigquery.StringFieldType, Required: true},
		{Name: "event_type", Type: bigquery.StringFieldType, Required: true},
		{Name: "payload", Type: bigquery.BytesFieldType},
		{Name: "occurred_on", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "sent_at", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "retry_attempts", Type: bigquery.IntegerFieldType, Required: true},
	}
}

func archiveTableMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Description:      "Sent HR domain events removed from outbox_records by retention",
		Schema:           ArchiveSchema(),
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "sent_at"},
		Clustering:       &bigquery.Clustering{Fields: []string{"aggregate_type", "event_type"}},
	}
}

// Client streams archive rows into one table.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	table   string
}

// NewClient connects to BigQuery and checks the archive table, creating it
// when cfg.CreateTable is set. A missing dataset is always an error.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	table := archiveTable(cfg)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), table: table}

	created, err := c.prepare(ctx, cfg.CreateTable)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset":       datasetID,
			"table":         table,
			"table_created": created,
		}), "bigquery archive ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func archiveTable(cfg config.BigQueryConfig) string {
	return strings.TrimSpace(cfg.ArchiveTable)
}

func (c *Client) prepare(ctx context.Context, create bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return false, fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return false, fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	ref := c.dataset.Table(c.table)
	_, err := ref.Metadata(ctx)
	switch {
	case err == nil:
		return false, nil
	case !isNotFound(err):
		return false, fmt.Errorf("checking table %q: %w", c.table, err)
	case !create:
		return false, fmt.Errorf("table %q does not exist", c.table)
	}
	if err := ref.Create(ctx, archiveTableMetadata()); err != nil && !isConflict(err) {
		return false, fmt.Errorf("creating table %q: %w", c.table, err)
	}
	return true, nil
}

// Ping checks that the dataset and archive table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	_, err := c.prepare(ctx, false)
	return err
}

// InsertRows streams rows into the archive table. Rows implementing
// bigquery.ValueSaver carry their own insert id.
func (c *Client) InsertRows(ctx context.Context, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(c.table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// isConflict covers a concurrent worker creating the table first.
func isConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

func hasStatus(err error, status int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == status
}
