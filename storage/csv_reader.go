package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"property-map-search/models"
)

// csvColumns are the recognised header names of a property CSV file.
var csvColumns = []string{"id", "price", "lat", "lng", "city", "address", "title", "image", "bedrooms", "bathrooms"}

// CSVSource reads raw properties from a CSV file with a header row. Columns
// may appear in any order; unknown columns are ignored.
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSVSource for the file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// FetchAll reads the whole file on every call.
func (s *CSVSource) FetchAll(ctx context.Context) ([]models.PropertyRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", s.path, err)
	}
	defer f.Close()

	return ReadProperties(ctx, f)
}

// ReadProperties parses property rows from r. Prices are kept as raw text;
// empty or unparseable coordinates leave Coordinates nil.
func ReadProperties(ctx context.Context, r io.Reader) ([]models.PropertyRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := index["id"]; !ok {
		return nil, fmt.Errorf("csv: header has no id column (want some of %v)", csvColumns)
	}

	var records []models.PropertyRecord
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read line %d: %w", line, err)
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := models.PropertyRecord{
			ID:        get("id"),
			RawPrice:  get("price"),
			City:      get("city"),
			Address:   get("address"),
			Title:     get("title"),
			ImageURL:  get("image"),
			Bedrooms:  atoiOrZero(get("bedrooms")),
			Bathrooms: atoiOrZero(get("bathrooms")),
		}
		lat, latErr := strconv.ParseFloat(get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(get("lng"), 64)
		if latErr == nil && lngErr == nil {
			rec.Coordinates = &models.Coordinates{Lat: lat, Lng: lng}
		}

		records = append(records, rec)
	}

	return records, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
