package cron

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/civil"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"go.uber.org/multierr"
)

const summaryMarkerTTL = 72 * time.Hour

type summaryBuilder interface {
	BuildDailySummary(ctx context.Context, day time.Time) ([]audit.SummaryRow, error)
}

type summaryExporter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
	SummaryTable() string
}

// dayMarker remembers which days were already exported. The cron lock's
// redis client satisfies it.
type dayMarker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type AuditSummaryJobParams struct {
	Logger       *logger.Logger
	Summaries    summaryBuilder
	Exporter     summaryExporter
	Marker       dayMarker
	MarkerKey    func(day string) string
	LookbackDays int
}

// SummaryExportRow is the BigQuery row shape of one action on one day.
type SummaryExportRow struct {
	Day        civil.Date `bigquery:"day"`
	Action     string     `bigquery:"action"`
	EventCount int64      `bigquery:"event_count"`
	AmountUSD  *big.Rat   `bigquery:"amount_usd"`
	ExportedAt time.Time  `bigquery:"exported_at"`
}

// NewAuditSummaryJob builds the job that summarizes completed UTC days of the
// audit log. With no exporter the summary is only logged.
func NewAuditSummaryJob(params AuditSummaryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Summaries == nil {
		return nil, fmt.Errorf("summary builder required")
	}
	if params.Marker == nil {
		return nil, fmt.Errorf("day marker required")
	}
	keyFn := params.MarkerKey
	if keyFn == nil {
		keyFn = func(day string) string { return "tc:cron:audit-summary:" + day }
	}
	lookback := params.LookbackDays
	if lookback <= 0 {
		lookback = 1
	}
	return &auditSummaryJob{
		logg:      params.Logger,
		summaries: params.Summaries,
		exporter:  params.Exporter,
		marker:    params.Marker,
		keyFn:     keyFn,
		lookback:  lookback,
		now:       time.Now,
	}, nil
}

type auditSummaryJob struct {
	logg      *logger.Logger
	summaries summaryBuilder
	exporter  summaryExporter
	marker    dayMarker
	keyFn     func(day string) string
	lookback  int
	now       func() time.Time
}

func (j *auditSummaryJob) Name() string { return "audit-daily-summary" }

func (j *auditSummaryJob) Run(ctx context.Context) error {
	today := j.now().UTC().Truncate(24 * time.Hour)
	var errs error
	for i := j.lookback; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		if err := j.summarizeDay(ctx, day); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (j *auditSummaryJob) summarizeDay(ctx context.Context, day time.Time) error {
	label := day.Format("2006-01-02")
	key := j.keyFn(label)
	claimed, err := j.marker.SetNX(ctx, key, j.now().UTC().Format(time.RFC3339), summaryMarkerTTL)
	if err != nil {
		return fmt.Errorf("claim summary day %s: %w", label, err)
	}
	if !claimed {
		return nil
	}

	rows, err := j.summaries.BuildDailySummary(ctx, day)
	if err == nil {
		err = j.export(ctx, day, rows)
	}
	if err != nil {
		if delErr := j.marker.Del(ctx, key); delErr != nil {
			err = multierr.Append(err, delErr)
		}
		return fmt.Errorf("summary for %s: %w", label, err)
	}

	var events int64
	for _, row := range rows {
		events += row.Count
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"day":      label,
		"actions":  len(rows),
		"events":   events,
		"exported": j.exporter != nil,
	}), "audit daily summary built")
	return nil
}

func (j *auditSummaryJob) export(ctx context.Context, day time.Time, rows []audit.SummaryRow) error {
	if j.exporter == nil || len(rows) == 0 {
		return nil
	}
	exportedAt := j.now().UTC()
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, &SummaryExportRow{
			Day:        civil.DateOf(day),
			Action:     string(row.Action),
			EventCount: row.Count,
			AmountUSD:  row.AmountUSD.Rat(),
			ExportedAt: exportedAt,
		})
	}
	return j.exporter.InsertRows(ctx, j.exporter.SummaryTable(), out)
}
