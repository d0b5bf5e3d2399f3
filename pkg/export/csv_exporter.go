package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// ManifestHeaders are the columns of the committed-students manifest.
var ManifestHeaders = []string{"name", "idNumber", "degree", "programme", "campus", "expirationDate"}

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// StudentManifest lists the cards about to be printed, in order.
func StudentManifest(cards []StudentCard) Dataset {
	rows := make([]map[string]string, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, map[string]string{
			"name":           c.Name,
			"idNumber":       c.IDNumber,
			"degree":         c.Degree,
			"programme":      c.Programme,
			"campus":         c.Campus,
			"expirationDate": c.ExpirationDate,
		})
	}
	return Dataset{Headers: ManifestHeaders, Rows: rows}
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
