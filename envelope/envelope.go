// Package envelope runs the standardize → expand → predict pipeline as one
// bounded, deterministic call. Every budget is checked before any stage
// runs, so a failing call never yields partial output.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/sync/errgroup"

	"salesproof/ml"
)

// Config configures an Envelope.
type Config struct {
	Limits Limits `yaml:",inline" json:"limits"`
	// Workers > 1 splits rows across goroutines. Each row is still
	// accumulated in fixed order and written to its own slot, so the output
	// is identical to a serial run.
	Workers int `yaml:"workers" json:"workers"`
}

// Envelope is safe for concurrent use; it holds no per-call state.
type Envelope struct {
	limits  Limits
	workers int
}

func New(cfg Config) (*Envelope, error) {
	if err := cfg.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("envelope limits: %w", err)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Envelope{limits: cfg.Limits, workers: workers}, nil
}

func (e *Envelope) Limits() Limits {
	return e.limits
}

// Execution is the observable result of a successful call together with the
// canonical bytes a prover commits to.
type Execution struct {
	Predictions  ml.PredictionVector
	Input        []byte
	Output       []byte
	InputDigest  string
	OutputDigest string
}

// Run returns exactly the prediction vector for input, or an error and
// nothing else.
func (e *Envelope) Run(input ml.ModelInput) (ml.PredictionVector, error) {
	exec, err := e.Execute(input)
	if err != nil {
		return nil, err
	}
	return exec.Predictions, nil
}

func (e *Envelope) Execute(input ml.ModelInput) (*Execution, error) {
	inputBytes := InputSize(input)
	if inputBytes > e.limits.MaxInputBytes {
		return nil, ml.BudgetExceeded("input", e.limits.MaxInputBytes, inputBytes)
	}
	outputBytes := OutputSize(len(input.Matrix))
	if outputBytes > e.limits.MaxOutputBytes {
		return nil, ml.BudgetExceeded("output", e.limits.MaxOutputBytes, outputBytes)
	}

	plan, err := ml.PlanFor(input)
	if err != nil {
		return nil, err
	}
	if err := plan.Check(input.Matrix); err != nil {
		return nil, err
	}
	heap := HeapDemand(plan, len(input.Matrix), inputBytes, outputBytes)
	if heap > e.limits.MaxHeapBytes {
		return nil, ml.BudgetExceeded("heap", e.limits.MaxHeapBytes, heap)
	}

	encodedInput := EncodeInput(input)
	preds, err := e.predict(plan, input.Matrix)
	if err != nil {
		return nil, err
	}
	encodedOutput := EncodeOutput(preds)

	return &Execution{
		Predictions:  preds,
		Input:        encodedInput,
		Output:       encodedOutput,
		InputDigest:  Digest(encodedInput),
		OutputDigest: Digest(encodedOutput),
	}, nil
}

func (e *Envelope) predict(plan *ml.Plan, matrix ml.FeatureMatrix) (ml.PredictionVector, error) {
	if e.workers == 1 || len(matrix) < 2 {
		return plan.Run(matrix)
	}

	out := make(ml.PredictionVector, len(matrix))
	chunk := (len(matrix) + e.workers - 1) / e.workers
	var g errgroup.Group
	for start := 0; start < len(matrix); start += chunk {
		start, end := start, min(start+chunk, len(matrix))
		g.Go(func() error {
			for i := start; i < end; i++ {
				v, err := plan.PredictRow(matrix[i])
				if err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
				out[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Digest is the hex SHA-256 of canonical bytes.
func Digest(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
