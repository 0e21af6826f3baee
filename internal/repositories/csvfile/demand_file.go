package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

var header = []string{"zone", "slot", "demand", "variance"}

// DemandFile reads and writes demand tables as CSV with a zone,slot,demand[,variance]
// header.
type DemandFile struct {
	Path string
}

func NewDemandFile(path string) *DemandFile {
	return &DemandFile{Path: path}
}

func (f *DemandFile) LoadDemand(_ context.Context, _ string) (*models.DemandTable, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	defer file.Close()
	return ReadDemand(file)
}

func (f *DemandFile) SaveDemand(_ context.Context, _ string, demand *models.DemandTable) error {
	file, err := os.Create(f.Path)
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	if err := WriteDemand(file, demand); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadDemand parses a demand CSV. The variance column is optional.
func ReadDemand(r io.Reader) (*models.DemandTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	head, err := reader.Read()
	if err == io.EOF {
		return models.NewDemandTable(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	cols, err := columns(head)
	if err != nil {
		return nil, err
	}

	var entries []models.DemandEntry
	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}

		slot, err := strconv.Atoi(get("slot"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: slot: %w", line, err)
		}
		demand, err := strconv.ParseFloat(get("demand"), 64)
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: demand: %w", line, err)
		}
		var variance float64
		if v := get("variance"); v != "" {
			if variance, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("csv: line %d: variance: %w", line, err)
			}
		}

		entries = append(entries, models.DemandEntry{
			Zone:     models.Zone(get("zone")),
			Slot:     models.TimeSlot(slot),
			Expected: demand,
			Variance: variance,
		})
	}
	return models.NewDemandTable(entries)
}

func columns(head []string) (map[string]int, error) {
	cols := make(map[string]int, len(head))
	for i, h := range head {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range header[:3] {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv: missing %q column", required)
		}
	}
	return cols, nil
}

func WriteDemand(w io.Writer, demand *models.DemandTable) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, e := range demand.Entries() {
		record := []string{
			string(e.Zone),
			strconv.Itoa(int(e.Slot)),
			strconv.FormatFloat(e.Expected, 'f', -1, 64),
			strconv.FormatFloat(e.Variance, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
