package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type CSVOutput struct {
	basePath string
	folder   string
	files    map[string]*os.File
	writers  map[string]*csv.Writer
	headers  map[string][]string
}

func NewCSVOutput(basePath, folder string) *CSVOutput {
	return &CSVOutput{
		basePath: basePath,
		folder:   folder,
		files:    make(map[string]*os.File),
		writers:  make(map[string]*csv.Writer),
		headers:  make(map[string][]string),
	}
}

// decodeMap keeps numbers as written so large timestamps do not turn into
// exponent notation.
func decodeMap(msg []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var event map[string]interface{}
	if err := dec.Decode(&event); err != nil {
		return nil, err
	}
	return event, nil
}

func runDir(basePath, folder, topic string, event map[string]interface{}) (string, string, error) {
	runID, _ := event["runId"].(string)
	if runID == "" {
		return "", "", fmt.Errorf("event without runId on topic %s", topic)
	}
	part := partition(runID)
	fullPath := filepath.Join(basePath, folder, topic, part)
	if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
		return "", "", err
	}
	return fullPath, topic + "_" + part, nil
}

func (c *CSVOutput) WriteMessage(topic string, msg []byte) error {
	event, err := decodeMap(msg)
	if err != nil {
		return err
	}
	fullPath, fileKey, err := runDir(c.basePath, c.folder, topic, event)
	if err != nil {
		return err
	}

	csvWriter, ok := c.writers[fileKey]
	if !ok {
		file, err := os.Create(filepath.Join(fullPath, "data.csv"))
		if err != nil {
			return err
		}
		c.files[fileKey] = file
		csvWriter = csv.NewWriter(file)
		c.writers[fileKey] = csvWriter

		headers := make([]string, 0, len(event))
		for key := range event {
			headers = append(headers, key)
		}
		sort.Strings(headers)
		if err := csvWriter.Write(headers); err != nil {
			return err
		}
		c.headers[fileKey] = headers
	}

	row := make([]string, len(c.headers[fileKey]))
	for i, header := range c.headers[fileKey] {
		if value, ok := event[header]; ok {
			row[i] = fmt.Sprintf("%v", value)
		}
	}
	if err := csvWriter.Write(row); err != nil {
		return err
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (c *CSVOutput) Close() error {
	var firstErr error
	for key, w := range c.writers {
		w.Flush()
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := c.files[key].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.writers = make(map[string]*csv.Writer)
	c.files = make(map[string]*os.File)
	return firstErr
}

// JSONOutput writes newline-delimited JSON.
type JSONOutput struct {
	basePath string
	folder   string
	files    map[string]*os.File
}

func NewJSONOutput(basePath, folder string) *JSONOutput {
	return &JSONOutput{
		basePath: basePath,
		folder:   folder,
		files:    make(map[string]*os.File),
	}
}

func (j *JSONOutput) WriteMessage(topic string, msg []byte) error {
	event, err := decodeMap(msg)
	if err != nil {
		return err
	}
	fullPath, fileKey, err := runDir(j.basePath, j.folder, topic, event)
	if err != nil {
		return err
	}

	file, ok := j.files[fileKey]
	if !ok {
		file, err = os.Create(filepath.Join(fullPath, "data.json"))
		if err != nil {
			return err
		}
		j.files[fileKey] = file
	}

	if _, err := file.Write(bytes.TrimSpace(msg)); err != nil {
		return err
	}
	_, err = file.WriteString("\n")
	return err
}

func (j *JSONOutput) Close() error {
	var firstErr error
	for _, file := range j.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.files = make(map[string]*os.File)
	return firstErr
}
