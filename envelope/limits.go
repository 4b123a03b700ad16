package envelope

import (
	"fmt"

	"salesproof/ml"
)

const (
	DefaultMaxInputBytes  int64 = 100_000_000
	DefaultMaxOutputBytes int64 = 100_000
	DefaultMaxHeapBytes   int64 = 1 << 30
)

// Limits is the resource contract of an envelope. It is fixed when the
// envelope is built and never derived from the input being processed.
type Limits struct {
	MaxInputBytes  int64 `yaml:"max_input_bytes" json:"max_input_bytes"`
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes"`
	MaxHeapBytes   int64 `yaml:"max_heap_bytes" json:"max_heap_bytes"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes:  DefaultMaxInputBytes,
		MaxOutputBytes: DefaultMaxOutputBytes,
		MaxHeapBytes:   DefaultMaxHeapBytes,
	}
}

// Validate checks that every budget is positive.
func (l Limits) Validate() error {
	if l.MaxInputBytes <= 0 {
		return fmt.Errorf("max_input_bytes must be > 0, got %d", l.MaxInputBytes)
	}
	if l.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_bytes must be > 0, got %d", l.MaxOutputBytes)
	}
	if l.MaxHeapBytes <= 0 {
		return fmt.Errorf("max_heap_bytes must be > 0, got %d", l.MaxHeapBytes)
	}
	return nil
}

// WithDefaults fills unset budgets from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxInputBytes == 0 {
		l.MaxInputBytes = d.MaxInputBytes
	}
	if l.MaxOutputBytes == 0 {
		l.MaxOutputBytes = d.MaxOutputBytes
	}
	if l.MaxHeapBytes == 0 {
		l.MaxHeapBytes = d.MaxHeapBytes
	}
	return l
}

// Sizes of the runtime structures counted by HeapDemand, assuming a 64-bit
// target.
const (
	sliceHeaderBytes = 24
	float32Bytes     = 4
	featureTermBytes = 24
)

// HeapDemand is the number of bytes the pipeline allocates for rows rows
// under plan. It is derived from shapes only, so the same input always
// yields the same figure.
func HeapDemand(plan *ml.Plan, rows int, inputBytes, outputBytes int64) int64 {
	n := int64(plan.BaseWidth())
	m := int64(plan.ModelWidth())
	r := int64(rows)

	demand := inputBytes + outputBytes
	demand += 2 * n * float32Bytes // scaler mean and scale copies
	demand += m * float32Bytes     // coefficient copy
	demand += r * (sliceHeaderBytes + n*float32Bytes)
	if plan.Expands() {
		demand += m * featureTermBytes
		demand += r * (sliceHeaderBytes + m*float32Bytes)
	}
	demand += r * float32Bytes
	return demand
}
