package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chrisdamba/fleetalloc/internal/cloudwriter"
	"github.com/chrisdamba/fleetalloc/internal/models"
)

// Destination receives encoded events. Sinks are not safe for concurrent use
// unless stated otherwise.
type Destination interface {
	WriteMessage(topic string, msg []byte) error
	Close() error
}

// ReportWriter is implemented by destinations that render a whole report instead
// of individual events.
type ReportWriter interface {
	WriteReport(report *models.SolutionReport) error
}

type Topics struct {
	Rows string
	Runs string
}

func TopicsFor(cfg *models.Config) Topics {
	base := cfg.Output.KafkaTopic
	if base == "" {
		base = "driver_allocations"
	}
	return Topics{Rows: base, Runs: base + "_runs"}
}

// Publish sends one event per allocation row followed by the run summary.
func Publish(dest Destination, topics Topics, report *models.SolutionReport, at time.Time) error {
	if report == nil {
		return fmt.Errorf("output: nil report")
	}
	if rw, ok := dest.(ReportWriter); ok {
		return rw.WriteReport(report)
	}
	for _, ev := range NewRowEvents(report, at) {
		msg, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := dest.WriteMessage(topics.Rows, msg); err != nil {
			return fmt.Errorf("output: write %s/%d: %w", ev.ZoneID, ev.Slot, err)
		}
	}
	msg, err := json.Marshal(NewRunEvent(report, at))
	if err != nil {
		return err
	}
	if err := dest.WriteMessage(topics.Runs, msg); err != nil {
		return fmt.Errorf("output: write run %s: %w", report.RunID, err)
	}
	return nil
}

// New picks the destination from the output section of cfg. Kafka wins over
// file formats.
func New(ctx context.Context, cfg *models.Config) (Destination, error) {
	out := cfg.Output
	if out.KafkaEnabled {
		return NewKafkaOutput(out.KafkaBrokerList)
	}

	switch out.Format {
	case models.OutputFormatParquet:
		var factory cloudwriter.CloudWriterFactory
		if out.Destination != "" && out.Destination != models.OutputDestinationLocal {
			switch out.CloudStorage.Provider {
			case models.OutputDestinationS3:
				f, err := cloudwriter.NewS3WriterFactory(ctx, out.CloudStorage.Region, out.CloudStorage.Endpoint)
				if err != nil {
					return nil, fmt.Errorf("failed to create cloud writer factory: %w", err)
				}
				factory = f
			default:
				return nil, fmt.Errorf("unsupported cloud storage provider: %s", out.CloudStorage.Provider)
			}
		}
		return NewParquetOutput(out.Path, out.Folder, factory, out.CloudStorage.BucketName), nil
	case models.OutputFormatJSON:
		return NewJSONOutput(out.Path, out.Folder), nil
	case models.OutputFormatCSV:
		return NewCSVOutput(out.Path, out.Folder), nil
	case models.OutputFormatConsole, "":
		return NewConsoleOutput(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", out.Format)
	}
}

func partition(runID string) string {
	if runID == "" {
		runID = "unknown"
	}
	return "run_id=" + runID
}
