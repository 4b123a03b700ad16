// Package pipeline reads and cleans the tabular dataset that feeds the
// inference pipeline.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"salesproof/ml"
)

// LabelColumn is the target variable; it is never part of the feature vector.
const LabelColumn = "amount"

var states = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

var (
	paymentColumns  = []string{"IsCash", "IsPayPal", "IsDebitCard", "IsCreditCard"}
	categoryColumns = []string{"IsBooks", "IsHomeDecor", "IsElectronics", "IsClothing"}
)

// FeatureColumns returns the canonical feature order the scaler and models
// were fitted with.
func FeatureColumns() []string {
	cols := []string{"quantity", "price", "discount_applied"}
	for _, s := range states {
		cols = append(cols, "Is"+s)
	}
	cols = append(cols, paymentColumns...)
	cols = append(cols, categoryColumns...)
	return cols
}

// StateColumns returns the one-hot state indicator columns.
func StateColumns() []string {
	cols := make([]string, len(states))
	for i, s := range states {
		cols[i] = "Is" + s
	}
	return cols
}

// Dataset is a feature matrix with its labels, rows in file order.
type Dataset struct {
	Columns  []string
	Features ml.FeatureMatrix
	Labels   []float32
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// Options control how a dataset file is decoded.
type Options struct {
	// Encoding is "utf-8" (default, BOM tolerated) or "gbk".
	Encoding string
	// Columns overrides FeatureColumns.
	Columns []string
	// Label overrides LabelColumn.
	Label string
}

func (o Options) withDefaults() Options {
	if o.Encoding == "" {
		o.Encoding = "utf-8"
	}
	if len(o.Columns) == 0 {
		o.Columns = FeatureColumns()
	}
	if o.Label == "" {
		o.Label = LabelColumn
	}
	return o
}

func decoder(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case "gbk":
		return transform.NewReader(r, simplifiedchinese.GBK.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// LoadDataset opens path and reads it with ReadDataset.
func LoadDataset(path string, opts Options) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ds, err := ReadDataset(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadDataset parses a CSV with a header row. Columns may appear in any
// order in the file; the resulting rows follow opts.Columns.
func ReadDataset(r io.Reader, opts Options) (*Dataset, error) {
	opts = opts.withDefaults()
	text, err := decoder(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(text)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ml.Parsef("dataset has no header")
	}
	if err != nil {
		return nil, ml.Parsef("header: %v", err)
	}

	position := make(map[string]int, len(header))
	for i, name := range header {
		position[strings.TrimSpace(name)] = i
	}
	featureIdx := make([]int, len(opts.Columns))
	for j, name := range opts.Columns {
		idx, ok := position[name]
		if !ok {
			return nil, ml.Parsef("missing column %q", name)
		}
		featureIdx[j] = idx
	}
	labelIdx, ok := position[opts.Label]
	if !ok {
		return nil, ml.Parsef("missing label column %q", opts.Label)
	}

	ds := &Dataset{Columns: append([]string(nil), opts.Columns...)}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ml.Parsef("line %d: %v", line, err)
		}

		row := make([]float32, len(featureIdx))
		for j, idx := range featureIdx {
			v, err := parseValue(record[idx])
			if err != nil {
				return nil, ml.Parsef("line %d column %q: %v", line, opts.Columns[j], err)
			}
			row[j] = v
		}
		label, err := parseValue(record[labelIdx])
		if err != nil {
			return nil, ml.Parsef("line %d column %q: %v", line, opts.Label, err)
		}
		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, label)
	}

	if len(ds.Features) == 0 {
		return nil, &ml.InferenceError{Kind: ml.ErrEmptyInput, Msg: "dataset has no rows"}
	}
	return ds, nil
}

func parseValue(s string) (float32, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "True", "true":
		return 1, nil
	case "False", "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}
