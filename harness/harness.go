// Package harness pairs the envelope with a replay verifier. A proof carries
// the canonical input and output bytes of one execution; verifying it means
// re-running the input under the recorded limits and comparing bytes.
package harness

import (
	"bytes"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"salesproof/envelope"
	"salesproof/ml"
)

const DefaultCacheSize = 1024

type Proof struct {
	Input        []byte          `json:"input"`
	Output       []byte          `json:"output"`
	InputDigest  string          `json:"input_digest"`
	OutputDigest string          `json:"output_digest"`
	Limits       envelope.Limits `json:"limits"`
}

type (
	ProveFunc  func(ml.ModelInput) (ml.PredictionVector, *Proof, error)
	VerifyFunc func(*Proof) bool
)

type Option func(*Harness)

// WithCacheSize sets how many verification outcomes are remembered.
func WithCacheSize(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.cacheSize = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithWorkers sets the row parallelism used when replaying a proof.
func WithWorkers(n int) Option {
	return func(h *Harness) {
		h.workers = n
	}
}

type Stats struct {
	Proved    int64 `json:"proved"`
	Verified  int64 `json:"verified"`
	Rejected  int64 `json:"rejected"`
	CacheHits int64 `json:"cache_hits"`
}

type Harness struct {
	env       *envelope.Envelope
	cache     *lru.Cache[string, bool]
	cacheSize int
	workers   int
	logger    *zap.Logger

	proved, verified, rejected, hits atomic.Int64
}

func New(env *envelope.Envelope, opts ...Option) *Harness {
	h := &Harness{
		env:       env,
		cacheSize: DefaultCacheSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	// lru.New only fails for a non-positive size.
	h.cache, _ = lru.New[string, bool](h.cacheSize)
	return h
}

// Build returns the prove and verify halves of a harness as plain functions.
func Build(env *envelope.Envelope, opts ...Option) (ProveFunc, VerifyFunc) {
	h := New(env, opts...)
	return h.Prove, h.Verify
}

func (h *Harness) Prove(input ml.ModelInput) (ml.PredictionVector, *Proof, error) {
	exec, err := h.env.Execute(input)
	if err != nil {
		return nil, nil, err
	}
	h.proved.Add(1)
	return exec.Predictions, &Proof{
		Input:        exec.Input,
		Output:       exec.Output,
		InputDigest:  exec.InputDigest,
		OutputDigest: exec.OutputDigest,
		Limits:       h.env.Limits(),
	}, nil
}

// Verify reports whether replaying proof.Input under proof.Limits yields
// exactly proof.Output. Proofs claiming limits looser than the harness's own
// envelope are rejected.
func (h *Harness) Verify(proof *Proof) bool {
	if proof == nil {
		h.rejected.Add(1)
		return false
	}
	key := cacheKey(proof)
	if ok, found := h.cache.Get(key); found {
		h.hits.Add(1)
		h.count(ok)
		return ok
	}

	err := h.replay(proof)
	ok := err == nil
	if !ok {
		h.logger.Info("proof rejected",
			zap.String("input_digest", proof.InputDigest),
			zap.Error(err))
	}
	h.cache.Add(key, ok)
	h.count(ok)
	return ok
}

func (h *Harness) replay(proof *Proof) error {
	if envelope.Digest(proof.Input) != proof.InputDigest {
		return fmt.Errorf("input digest mismatch")
	}
	if envelope.Digest(proof.Output) != proof.OutputDigest {
		return fmt.Errorf("output digest mismatch")
	}
	if local := h.env.Limits(); exceeds(proof.Limits, local) {
		return fmt.Errorf("proof limits %+v exceed envelope limits %+v", proof.Limits, local)
	}
	input, err := envelope.DecodeInput(proof.Input)
	if err != nil {
		return err
	}
	env, err := envelope.New(envelope.Config{Limits: proof.Limits, Workers: h.workers})
	if err != nil {
		return err
	}
	exec, err := env.Execute(input)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !bytes.Equal(exec.Input, proof.Input) {
		return fmt.Errorf("input is not canonical")
	}
	if !bytes.Equal(exec.Output, proof.Output) {
		return fmt.Errorf("output mismatch")
	}
	return nil
}

func exceeds(l, bound envelope.Limits) bool {
	return l.MaxInputBytes > bound.MaxInputBytes ||
		l.MaxOutputBytes > bound.MaxOutputBytes ||
		l.MaxHeapBytes > bound.MaxHeapBytes
}

func (h *Harness) count(ok bool) {
	if ok {
		h.verified.Add(1)
	} else {
		h.rejected.Add(1)
	}
}

func (h *Harness) Stats() Stats {
	return Stats{
		Proved:    h.proved.Load(),
		Verified:  h.verified.Load(),
		Rejected:  h.rejected.Load(),
		CacheHits: h.hits.Load(),
	}
}

func cacheKey(p *Proof) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", p.InputDigest, p.OutputDigest,
		p.Limits.MaxInputBytes, p.Limits.MaxOutputBytes, p.Limits.MaxHeapBytes)
}
