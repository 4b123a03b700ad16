package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"salesproof/db"
	"salesproof/harness"
	"salesproof/ml"
	"salesproof/monitoring"
	"salesproof/registry"
)

// API holds what the handlers need. Hub and Metrics are optional; Store
// enables run persistence through the db package.
type API struct {
	Registry *registry.Registry
	Harness  *harness.Harness
	Hub      *monitoring.Hub
	Metrics  *monitoring.MetricsCollector
	Logger   *zap.Logger
	Store    bool
}

func (a *API) Register(mux *http.ServeMux) {
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	if a.Metrics == nil {
		a.Metrics = monitoring.NewMetricsCollector()
	}
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/models", a.handleModels)
	mux.HandleFunc("POST /api/predict/{model}", a.handlePredict)
	mux.HandleFunc("POST /api/verify", a.handleVerify)
	mux.HandleFunc("GET /api/runs", a.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", a.handleRun)
	mux.HandleFunc("GET /metrics", a.handleMetrics)
	if a.Hub != nil {
		mux.HandleFunc("GET /api/ws", a.Hub.HandleWebSocket)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type modelInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	BaseWidth int    `json:"base_width"`
	Features  int    `json:"features"`
}

func (a *API) handleModels(w http.ResponseWriter, r *http.Request) {
	models := make([]modelInfo, 0)
	for _, name := range a.Registry.Names() {
		entry, err := a.Registry.Get(name)
		if err != nil {
			continue
		}
		models = append(models, modelInfo{
			Name:      name,
			Type:      entry.Bundle.Type,
			BaseWidth: len(entry.Bundle.Scaler.Mean),
			Features:  len(entry.Bundle.Model.Coefficients),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

type predictRequest struct {
	X       ml.FeatureMatrix `json:"x"`
	Actuals []float32        `json:"actuals,omitempty"`
}

type predictResponse struct {
	RunID        int64               `json:"run_id,omitempty"`
	Model        string              `json:"model"`
	Predictions  ml.PredictionVector `json:"predictions"`
	InputDigest  string              `json:"input_digest"`
	OutputDigest string              `json:"output_digest"`
	Metrics      *ml.Metrics         `json:"metrics,omitempty"`
	Proof        *harness.Proof      `json:"proof,omitempty"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("model")
	entry, err := a.Registry.Get(name)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error(), "")
		return
	}

	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Actuals != nil && len(req.Actuals) != len(req.X) {
		err := &ml.InferenceError{
			Kind: ml.ErrDimensionMismatch,
			Msg:  fmt.Sprintf("%d rows, %d actual values", len(req.X), len(req.Actuals)),
		}
		a.recordFailure(r, name, entry.Bundle.Type, len(req.X), err, 0)
		writeError(w, err)
		return
	}

	start := time.Now()
	preds, proof, err := a.Harness.Prove(entry.Bundle.Input(req.X))
	elapsed := time.Since(start)
	if err == nil {
		err = checkFinite(preds)
	}
	if err != nil {
		a.recordFailure(r, name, entry.Bundle.Type, len(req.X), err, elapsed)
		writeError(w, err)
		return
	}

	var metrics *ml.Metrics
	if req.Actuals != nil {
		m, err := ml.Evaluate(preds, req.Actuals)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics = &m
	}

	a.Metrics.RecordRun(name, len(preds), "", elapsed)
	resp := predictResponse{
		Model:        name,
		Predictions:  preds,
		InputDigest:  proof.InputDigest,
		OutputDigest: proof.OutputDigest,
		Metrics:      metrics,
	}
	if r.URL.Query().Get("proof") == "true" {
		resp.Proof = proof
	}
	if a.Store {
		id, err := db.SaveRun(db.Run{
			ModelName:    name,
			ModelType:    entry.Bundle.Type,
			Status:       db.StatusCompleted,
			Rows:         len(preds),
			InputDigest:  proof.InputDigest,
			OutputDigest: proof.OutputDigest,
			Metrics:      metrics,
		}, preds)
		if err != nil {
			a.Logger.Error("save run", zap.String("model", name), zap.Error(err))
		}
		resp.RunID = id
	}

	a.publish(monitoring.RunCompleted, monitoring.RunEvent{
		RunID:        resp.RunID,
		Model:        name,
		Rows:         len(preds),
		OutputDigest: proof.OutputDigest,
		DurationMS:   elapsed.Milliseconds(),
	})
	writeJSON(w, http.StatusOK, resp)
}

// checkFinite rejects predictions JSON cannot carry. A zero scale entry
// yields NaN or ±Inf; the run is reported as failed instead.
func checkFinite(preds ml.PredictionVector) error {
	for i, v := range preds {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ml.Invalidf("prediction %d is %v", i, v)
		}
	}
	return nil
}

func (a *API) recordFailure(r *http.Request, name, modelType string, rows int, err error, elapsed time.Duration) {
	kind := errorKind(err)
	a.Metrics.RecordRun(name, rows, kind, elapsed)
	a.Logger.Info("run failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("model", name),
		zap.String("kind", kind),
		zap.Error(err))

	var id int64
	if a.Store {
		var saveErr error
		id, saveErr = db.SaveRun(db.Run{
			ModelName: name,
			ModelType: modelType,
			Status:    db.StatusFailed,
			Error:     err.Error(),
			Rows:      rows,
		}, nil)
		if saveErr != nil {
			a.Logger.Error("save run", zap.String("model", name), zap.Error(saveErr))
		}
	}
	a.publish(monitoring.RunFailed, monitoring.RunEvent{
		RunID:      id,
		Model:      name,
		Rows:       rows,
		Kind:       kind,
		Error:      err.Error(),
		DurationMS: elapsed.Milliseconds(),
	})
}

func (a *API) publish(kind monitoring.MessageType, event monitoring.RunEvent) {
	if a.Hub == nil {
		return
	}
	if err := a.Hub.Publish(kind, event); err != nil {
		a.Logger.Warn("publish", zap.Error(err))
	}
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	var proof harness.Proof
	if err := decodeBody(r, &proof); err != nil {
		writeError(w, err)
		return
	}

	var run *db.Run
	if runID := r.URL.Query().Get("run_id"); runID != "" && a.Store {
		id, err := strconv.ParseInt(runID, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid run_id", "")
			return
		}
		run, err = db.LoadRun(id)
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "run not found", "")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error(), "")
			return
		}
	}

	ok := a.Harness.Verify(&proof)
	a.Metrics.RecordVerify(ok)

	if run != nil {
		// A proof only speaks for the run that produced its digests.
		matches := run.InputDigest == proof.InputDigest && run.OutputDigest == proof.OutputDigest
		if err := db.MarkVerified(run.ID, ok && matches); err != nil {
			a.Logger.Warn("mark verified", zap.Int64("run_id", run.ID), zap.Error(err))
		}
		if !matches {
			writeJSONError(w, http.StatusConflict, fmt.Sprintf("proof does not match run %d", run.ID), "")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified":      ok,
		"output_digest": proof.OutputDigest,
	})
}

func (a *API) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !a.Store {
		writeJSONError(w, http.StatusServiceUnavailable, "run storage disabled", "")
		return
	}
	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	runs, err := db.LoadRuns(limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	if !a.Store {
		writeJSONError(w, http.StatusServiceUnavailable, "run storage disabled", "")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid run id", "")
		return
	}
	run, err := db.LoadRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSONError(w, http.StatusNotFound, "run not found", "")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	preds, err := db.LoadPredictions(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "predictions": preds})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(a.Metrics.ExportPrometheus()))
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return &ml.InferenceError{
			Kind: ml.ErrResourceBudgetExceeded,
			Msg:  fmt.Sprintf("request body over %d bytes", maxBytes.Limit),
		}
	}
	if err != nil {
		return ml.Parsef("request body: %v", err)
	}
	return nil
}

// errorKind names the failure category reported to clients.
func errorKind(err error) string {
	if kind := ml.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ml.ErrResourceBudgetExceeded):
		return http.StatusRequestEntityTooLarge
	case ml.KindOf(err) != nil:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error(), errorKind(err))
}

func writeJSONError(w http.ResponseWriter, status int, msg, kind string) {
	body := map[string]string{"error": msg}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}

// writeJSON encodes v before committing the status, so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error(), "kind": "internal"})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(payload, '\n'))
}
