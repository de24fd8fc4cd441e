// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OutputSuffix is appended to a dataset's base name for sharpened output.
const OutputSuffix = ".qvalues.csv"

// ErrNoValues is returned when a dataset file contains no p-values.
var ErrNoValues = errors.New("dataset contains no p-values")

// OutputPath returns the sharpened-output path for a dataset path.
//
// Example: "trial.csv" -> "trial.qvalues.csv".
func OutputPath(datasetPath string) string {
	ext := filepath.Ext(datasetPath)
	return strings.TrimSuffix(datasetPath, ext) + OutputSuffix
}

// ReadPValues parses a CSV dataset of p-values, one per row.
//
// The first column of each row is used. A first row whose first column
// does not parse as a number is treated as a header and skipped. Blank
// rows are ignored.
func ReadPValues(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var pvals []float64
	row := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row %d: %w", row+1, err)
		}
		row++

		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			if row == 1 {
				continue // Header row
			}
			return nil, fmt.Errorf("dataset row %d: %q is not a number", row, record[0])
		}
		pvals = append(pvals, v)
	}

	if len(pvals) == 0 {
		return nil, ErrNoValues
	}
	return pvals, nil
}

// WriteQValues writes aligned (p, q) pairs as CSV with a header row.
func WriteQValues(path string, pvals, qvals []float64) error {
	if len(pvals) != len(qvals) {
		return fmt.Errorf("length mismatch: %d p-values, %d q-values", len(pvals), len(qvals))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"p_value", "q_value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range pvals {
		record := []string{
			strconv.FormatFloat(pvals[i], 'g', -1, 64),
			strconv.FormatFloat(qvals[i], 'g', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return f.Close()
}
