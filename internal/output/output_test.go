package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/chrisdamba/fleetalloc/internal/cloudwriter"
	"github.com/chrisdamba/fleetalloc/internal/models"
)

var testTopics = Topics{Rows: "driver_allocations", Runs: "driver_allocations_runs"}

func sampleReport() *models.SolutionReport {
	return &models.SolutionReport{
		RunID:    "run-1",
		Scenario: "default",
		Status:   models.StatusOptimal,
		Solver:   models.SolverSimplex,
		Rows: []models.AllocationDecision{
			{Zone: "A", Slot: 0, Demand: 50, RelaxedDrivers: 5, Drivers: 5, Throughput: 10, Served: 50, Utilization: 1, CapacityUsage: 1},
			{Zone: "B", Slot: 0, Demand: 5, RelaxedDrivers: 0.5, Drivers: 1, Throughput: 10, Served: 5, Utilization: 1, CapacityUsage: 0.5},
		},
		TotalDemand: 55, TotalServed: 55, DriverHours: 6,
		DriverCost: 120, TotalCost: 120, RelaxedObjective: 110, OnTimeRate: 1,
	}
}

var at = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func TestPublishCSV(t *testing.T) {
	dir := t.TempDir()
	out := NewCSVOutput(dir, "output")
	require.NoError(t, Publish(out, testTopics, sampleReport(), at))
	require.NoError(t, out.Close())

	f, err := os.Open(filepath.Join(dir, "output", "driver_allocations", "run_id=run-1", "data.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	col := map[string]int{}
	for i, h := range records[0] {
		col[h] = i
	}
	assert.Equal(t, "A", records[1][col["zoneId"]])
	assert.Equal(t, "5", records[1][col["driversAssigned"]])
	assert.Equal(t, "1740816000", records[1][col["timestamp"]])

	_, err = os.Stat(filepath.Join(dir, "output", "driver_allocations_runs", "run_id=run-1", "data.csv"))
	assert.NoError(t, err)
}

func TestPublishJSON(t *testing.T) {
	dir := t.TempDir()
	out := NewJSONOutput(dir, "output")
	require.NoError(t, Publish(out, testTopics, sampleReport(), at))
	require.NoError(t, out.Close())

	data, err := os.ReadFile(filepath.Join(dir, "output", "driver_allocations_runs", "run_id=run-1", "data.json"))
	require.NoError(t, err)

	var run AllocationRunEvent
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &run))
	assert.Equal(t, EventAllocationRun, run.EventType)
	assert.Equal(t, 120.0, run.TotalCost)
	assert.Equal(t, string(models.StatusOptimal), run.Status)

	rows, err := os.ReadFile(filepath.Join(dir, "output", "driver_allocations", "run_id=run-1", "data.json"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(rows)), "\n"), 2)
}

func TestFileOutputRejectsEventWithoutRun(t *testing.T) {
	out := NewJSONOutput(t.TempDir(), "output")
	assert.Error(t, out.WriteMessage("t", []byte(`{"eventType":"allocation_row"}`)))
}

func TestPublishParquetLocal(t *testing.T) {
	dir := t.TempDir()
	out := NewParquetOutput(dir, "output", nil, "")
	require.NoError(t, Publish(out, testTopics, sampleReport(), at))
	require.NoError(t, out.Close())

	fr, err := local.NewLocalFileReader(filepath.Join(dir, "output", "driver_allocations", "run_id=run-1", "data.parquet"))
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(AllocationRowEvent), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]AllocationRowEvent, 2)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, "A", rows[0].ZoneID)
	assert.EqualValues(t, 5, rows[0].Drivers)
	assert.Equal(t, "B", rows[1].ZoneID)
	assert.Equal(t, 0.5, rows[1].CapacityUsage)
}

type memoryWriter struct {
	buf    bytes.Buffer
	closed bool
}

func (m *memoryWriter) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m *memoryWriter) Close() error                { m.closed = true; return nil }

type memoryFactory struct {
	objects map[string]*memoryWriter
}

func (f *memoryFactory) NewWriter(bucket, objectPath string) (cloudwriter.CloudWriter, error) {
	w := &memoryWriter{}
	f.objects[bucket+"/"+objectPath] = w
	return w, nil
}

func TestPublishParquetCloud(t *testing.T) {
	factory := &memoryFactory{objects: map[string]*memoryWriter{}}
	out := NewParquetOutput("ignored", "plans", factory, "bucket")
	require.NoError(t, Publish(out, testTopics, sampleReport(), at))
	require.NoError(t, out.Close())

	require.Len(t, factory.objects, 2)
	obj, ok := factory.objects["bucket/plans/driver_allocations/run_id=run-1/data.parquet"]
	require.True(t, ok)
	assert.True(t, obj.closed)
	data := obj.buf.Bytes()
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestCloudParquetFileSeek(t *testing.T) {
	f := NewCloudParquetFile(&memoryWriter{})
	n, err := f.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	off, err := f.Seek(0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, off)

	_, err = f.Seek(0, 2)
	assert.Error(t, err)
	_, err = f.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestPublishKafka(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig())
	keys := make(chan string, 3)
	check := func(key string) mocks.MessageChecker {
		return func(msg *sarama.ProducerMessage) error {
			k, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			keys <- string(k)
			return nil
		}
	}
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check("A"))
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check("B"))
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check("run-1"))

	out := NewKafkaOutputWithProducer(producer)
	require.NoError(t, Publish(out, testTopics, sampleReport(), at))
	require.NoError(t, out.Close())

	close(keys)
	var got []string
	for k := range keys {
		got = append(got, k)
	}
	assert.Equal(t, []string{"A", "B", "run-1"}, got)
	assert.Error(t, out.WriteMessage("t", []byte("{}")), "closed output")
}

func TestPublishKafkaError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	out := NewKafkaOutputWithProducer(producer)
	err := Publish(out, testTopics, sampleReport(), at)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, out.Close())
}

func TestConsoleOutputRendersReport(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Warnings = []string{"solution is not proven optimal"}

	require.NoError(t, Publish(NewConsoleOutput(&buf), testTopics, report, at))

	text := buf.String()
	assert.Contains(t, text, "run run-1")
	assert.Contains(t, text, "warning: solution is not proven optimal")
	assert.Contains(t, text, "DRIVER-HOURS")
	assert.Contains(t, text, "cost 120.00 = drivers 120.00 + penalty 0.00")
}

func TestNewSelectsDestination(t *testing.T) {
	cfg := &models.Config{}
	cfg.Output.Format = models.OutputFormatCSV
	d, err := New(t.Context(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &CSVOutput{}, d)

	cfg.Output.Format = models.OutputFormatConsole
	d, err = New(t.Context(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &ConsoleOutput{}, d)

	cfg.Output.Format = "xml"
	_, err = New(t.Context(), cfg)
	assert.Error(t, err)

	cfg.Output.Format = models.OutputFormatParquet
	cfg.Output.Destination = "gcs"
	cfg.Output.CloudStorage.Provider = "gcs"
	_, err = New(t.Context(), cfg)
	assert.Error(t, err)
}

func TestTopicsFor(t *testing.T) {
	cfg := &models.Config{}
	assert.Equal(t, Topics{Rows: "driver_allocations", Runs: "driver_allocations_runs"}, TopicsFor(cfg))
	cfg.Output.KafkaTopic = "plans"
	assert.Equal(t, "plans_runs", TopicsFor(cfg).Runs)
}
