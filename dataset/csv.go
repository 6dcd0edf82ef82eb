// Package dataset loads labeled feature matrices from CSV files.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
)

// Dataset is a feature matrix with integer labels and optional item ids.
type Dataset struct {
	X            *mat.Dense // n x d
	Y            *mat.Dense // n x 1
	FeatureNames []string
	Items        []string // nil without an id column
}

// NSamples returns the number of rows.
func (d *Dataset) NSamples() int {
	n, _ := d.X.Dims()
	return n
}

// ClassCounts returns the number of samples of each label.
func (d *Dataset) ClassCounts() map[int]int {
	counts := make(map[int]int)
	n, _ := d.Y.Dims()
	for i := 0; i < n; i++ {
		counts[int(d.Y.At(i, 0))]++
	}
	return counts
}

// LoadCSVFile opens path and reads it with LoadCSV.
func LoadCSVFile(path, labelColumn, idColumn string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	ds, err := LoadCSV(f, labelColumn, idColumn)
	if err != nil {
		return nil, errors.Wrapf(err, "load dataset %s", path)
	}
	return ds, nil
}

// LoadCSV reads a CSV with a header row. labelColumn holds integer labels,
// idColumn (optional) item identifiers; every other column is a numeric
// feature named by its header.
func LoadCSV(r io.Reader, labelColumn, idColumn string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.ErrEmptyData
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	labelIdx, idIdx := -1, -1
	var featureIdx []int
	var featureNames []string
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == labelColumn:
			labelIdx = i
		case idColumn != "" && name == idColumn:
			idIdx = i
		default:
			featureIdx = append(featureIdx, i)
			featureNames = append(featureNames, name)
		}
	}
	if labelIdx < 0 {
		return nil, errors.NewValueError("LoadCSV", "label column "+strconv.Quote(labelColumn)+" not found")
	}
	if idColumn != "" && idIdx < 0 {
		return nil, errors.NewValueError("LoadCSV", "id column "+strconv.Quote(idColumn)+" not found")
	}
	if len(featureIdx) == 0 {
		return nil, errors.NewValueError("LoadCSV", "no feature columns")
	}

	var (
		features []float64
		labels   []float64
		items    []string
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}

		label, err := strconv.ParseFloat(strings.TrimSpace(record[labelIdx]), 64)
		if err != nil || label != math.Trunc(label) {
			return nil, errors.NewValueError("LoadCSV",
				"line "+strconv.Itoa(line)+": label "+strconv.Quote(record[labelIdx])+" is not an integer")
		}
		labels = append(labels, label)

		for _, j := range featureIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil {
				return nil, errors.NewValueError("LoadCSV",
					"line "+strconv.Itoa(line)+": column "+strconv.Quote(header[j])+" is not numeric")
			}
			features = append(features, v)
		}
		if idIdx >= 0 {
			items = append(items, record[idIdx])
		}
	}

	if len(labels) == 0 {
		return nil, errors.ErrEmptyData
	}
	return &Dataset{
		X:            mat.NewDense(len(labels), len(featureIdx), features),
		Y:            mat.NewDense(len(labels), 1, labels),
		FeatureNames: featureNames,
		Items:        items,
	}, nil
}
