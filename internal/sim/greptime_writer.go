package sim

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"sensor-sim/internal/telemetry"
)

// Greptime defaults.
const (
	DefaultGreptimePort     = 4001
	DefaultGreptimeDatabase = "public"
	DefaultGreptimeTable    = "sensor_readings"
	greptimeWriteTimeout    = 5 * time.Second
)

// greptimeClient is the subset of the ingester client used here.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter records every published reading, including whether it was
// an injected anomaly, so downstream alerting can be checked against ground
// truth.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database, tableName string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if database == "" {
		database = DefaultGreptimeDatabase
	}
	if tableName == "" {
		tableName = DefaultGreptimeTable
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{client: client, table: tableName}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		if endpoint == "" {
			return "", 0, fmt.Errorf("greptimedb endpoint is empty")
		}
		return endpoint, DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid greptimedb port %q", portStr)
	}
	return host, port, nil
}

// Write inserts a single reading.
func (w *GreptimeDBWriter) Write(r telemetry.SensorReading) error {
	return w.WriteBatch([]telemetry.SensorReading{r})
}

// WriteBatch inserts multiple readings in one request.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.SensorReading) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	columns := []func() error{
		func() error { return tbl.AddTagColumn("sensor_type", types.STRING) },
		func() error { return tbl.AddTagColumn("sensor_id", types.STRING) },
		func() error { return tbl.AddTagColumn("location", types.STRING) },
		func() error { return tbl.AddFieldColumn("value", types.FLOAT64) },
		func() error { return tbl.AddFieldColumn("anomalous", types.BOOLEAN) },
		func() error { return tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND) },
	}
	for _, add := range columns {
		if err := add(); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.SensorType, r.SensorID, r.Location, r.Value, r.Anomalous, r.Time()); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), greptimeWriteTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptimedb write %d rows: %w", len(rows), err)
	}
	return nil
}
