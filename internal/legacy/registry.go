// ABOUTME: CSV import of the known-client phone registry
// ABOUTME: Uses the "phone" column when a header names one, otherwise the first column

package legacy

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/2389/helpdesk-relay/internal/store"
)

const phoneColumn = "phone"

// ImportRegistryFile imports the phone registry from a CSV file.
func (im *Importer) ImportRegistryFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return im.ImportRegistry(ctx, f)
}

// ImportRegistry reads phones from CSV and adds them to the registry.
// Returns how many phones were new.
func (im *Importer) ImportRegistry(ctx context.Context, r io.Reader) (int, error) {
	phones, err := ReadPhones(r)
	if err != nil {
		return 0, err
	}
	added, err := im.target.AddKnownPhones(ctx, phones)
	if err != nil {
		return 0, fmt.Errorf("importing registry: %w", err)
	}
	im.logger.Info("imported registry", "read", len(phones), "added", added)
	return added, nil
}

// ReadPhones extracts the phone column from CSV. A first row without
// digits in the chosen column is treated as a header.
func ReadPhones(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	col := 0
	var phones []string
	for line := 0; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %w", ErrMalformedFile, err)
		}

		if line == 0 {
			if i := headerIndex(rec); i >= 0 {
				col = i
				continue
			}
		}
		if col >= len(rec) {
			continue
		}
		if p := store.NormalizePhone(rec[col]); p != "" {
			phones = append(phones, p)
		}
	}
	return phones, nil
}

// headerIndex returns the phone column of a header row, -1 for a data row.
func headerIndex(rec []string) int {
	for i, field := range rec {
		if strings.EqualFold(strings.TrimSpace(field), phoneColumn) {
			return i
		}
	}
	if len(rec) > 0 && store.NormalizePhone(rec[0]) == "" {
		return 0
	}
	return -1
}
