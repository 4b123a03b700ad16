package pipeline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"

	"salesproof/ml"
)

func TestFeatureColumns(t *testing.T) {
	cols := FeatureColumns()
	if len(cols) != 61 {
		t.Fatalf("expected 61 feature columns, got %d", len(cols))
	}
	if cols[0] != "quantity" || cols[3] != "IsAL" || cols[52] != "IsWY" || cols[60] != "IsClothing" {
		t.Fatalf("unexpected column order: %v", cols)
	}
	for _, c := range cols {
		if c == LabelColumn {
			t.Fatal("label must not be a feature column")
		}
	}
}

func TestReadDatasetReordersColumns(t *testing.T) {
	csv := "amount,price,quantity\n10.5,2.5,4\n3,1,3\n"
	ds, err := ReadDataset(strings.NewReader(csv), Options{Columns: []string{"quantity", "price"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", ds.Len())
	}
	if ds.Features[0][0] != 4 || ds.Features[0][1] != 2.5 {
		t.Fatalf("unexpected first row: %v", ds.Features[0])
	}
	if ds.Labels[0] != 10.5 || ds.Labels[1] != 3 {
		t.Fatalf("unexpected labels: %v", ds.Labels)
	}
}

func TestReadDatasetBOMAndBooleans(t *testing.T) {
	csv := "\ufeffquantity,IsCA,amount\n2,True,7\n1,False,3\n"
	ds, err := ReadDataset(strings.NewReader(csv), Options{Columns: []string{"quantity", "IsCA"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Features[0][1] != 1 || ds.Features[1][1] != 0 {
		t.Fatalf("expected boolean one-hots, got %v", ds.Features)
	}
}

func TestReadDatasetGBK(t *testing.T) {
	// Header contains a GBK-encoded note column that is ignored.
	var buf bytes.Buffer
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("备注,quantity,amount\n样本,2,4\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.WriteString(encoded)

	ds, err := ReadDataset(&buf, Options{Encoding: "gbk", Columns: []string{"quantity"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Features[0][0] != 2 || ds.Labels[0] != 4 {
		t.Fatalf("unexpected row %v label %v", ds.Features[0], ds.Labels[0])
	}
}

func TestReadDatasetErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		opts Options
		kind error
	}{
		{name: "empty", csv: "", kind: ml.ErrParse},
		{name: "missing feature", csv: "price,amount\n1,2\n", opts: Options{Columns: []string{"quantity"}}, kind: ml.ErrParse},
		{name: "missing label", csv: "quantity\n1\n", opts: Options{Columns: []string{"quantity"}}, kind: ml.ErrParse},
		{name: "bad number", csv: "quantity,amount\nabc,2\n", opts: Options{Columns: []string{"quantity"}}, kind: ml.ErrParse},
		{name: "ragged", csv: "quantity,amount\n1,2,3\n", opts: Options{Columns: []string{"quantity"}}, kind: ml.ErrParse},
		{name: "header only", csv: "quantity,amount\n", opts: Options{Columns: []string{"quantity"}}, kind: ml.ErrEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(tt.csv), tt.opts)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	if _, err := ReadDataset(strings.NewReader("a\n"), Options{Encoding: "latin9"}); err == nil {
		t.Fatal("expected unsupported encoding error")
	}
}

func TestLoadDatasetFullSchema(t *testing.T) {
	cols := FeatureColumns()
	header := strings.Join(append(append([]string(nil), cols...), LabelColumn), ",")
	values := make([]string, len(cols)+1)
	for i := range values {
		values[i] = "0"
	}
	values[0], values[1], values[len(values)-1] = "3", "19.99", "59.97"

	path := filepath.Join(t.TempDir(), "Test_Dataset.csv")
	if err := os.WriteFile(path, []byte(header+"\n"+strings.Join(values, ",")+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ds, err := LoadDataset(path, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Features.Width() != 61 {
		t.Fatalf("expected width 61, got %d", ds.Features.Width())
	}
	if ds.Labels[0] != 59.97 {
		t.Fatalf("unexpected label %v", ds.Labels[0])
	}

	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.csv"), Options{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
