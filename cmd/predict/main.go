package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"salesproof/db"
	"salesproof/envelope"
	"salesproof/harness"
	"salesproof/logging"
	"salesproof/ml"
	"salesproof/pipeline"
)

type options struct {
	modelType  string
	scalerPath string
	modelPath  string
	dataset    string
	encoding   string
	clean      string
	limits     envelope.Limits
	workers    int
	dbPath     string
	proofOut   string
	strict     bool
}

type report struct {
	Rows         int           `json:"rows"`
	Dropped      int           `json:"dropped"`
	Metrics      ml.Metrics    `json:"metrics"`
	Verified     bool          `json:"verified"`
	OutputDigest string        `json:"output_digest"`
	RunID        int64         `json:"run_id,omitempty"`
	Stats        harness.Stats `json:"stats"`
}

func main() {
	var opts options
	flag.StringVar(&opts.modelType, "type", ml.ModelPolynomialRidge, "model type: linear, ridge or polynomial_ridge")
	flag.StringVar(&opts.scalerPath, "scaler", "./models/scaler_params.json", "scaler parameter file")
	flag.StringVar(&opts.modelPath, "model", "./models/polynomial_ridge_regression_params.json", "model parameter file")
	flag.StringVar(&opts.dataset, "dataset", "./data/Test_Dataset.csv", "labelled CSV dataset")
	flag.StringVar(&opts.encoding, "encoding", "utf-8", "dataset encoding: utf-8 or gbk")
	flag.StringVar(&opts.clean, "clean", "drop", "row cleaning: drop, reject or off")
	flag.Int64Var(&opts.limits.MaxInputBytes, "max_input", envelope.DefaultMaxInputBytes, "input budget in bytes")
	flag.Int64Var(&opts.limits.MaxOutputBytes, "max_output", envelope.DefaultMaxOutputBytes, "output budget in bytes")
	flag.Int64Var(&opts.limits.MaxHeapBytes, "max_heap", envelope.DefaultMaxHeapBytes, "heap budget in bytes")
	flag.IntVar(&opts.workers, "workers", 1, "row parallelism")
	flag.StringVar(&opts.dbPath, "db", "", "record the run in this SQLite database")
	flag.StringVar(&opts.proofOut, "proof_out", "", "write the proof as JSON to this file")
	flag.BoolVar(&opts.strict, "strict_scale", false, "reject zero or non-finite scale entries")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := logging.Must(logging.Config{Level: level, Encoding: "console"})
	defer logger.Sync()

	rep, err := run(opts, logger)
	if err != nil {
		logger.Fatal("prediction failed", zap.Error(err))
	}
	printReport(os.Stdout, rep)
	if !rep.Verified {
		os.Exit(2)
	}
}

func run(opts options, logger *zap.Logger) (*report, error) {
	loadOpts := ml.LoadOptions{StrictScale: opts.strict}
	if opts.modelType == ml.ModelPolynomialRidge {
		loadOpts.BaseNames = pipeline.FeatureColumns()
	}
	bundle, err := ml.LoadModel(opts.modelType, opts.scalerPath, opts.modelPath, loadOpts)
	if err != nil {
		return nil, err
	}
	logger.Debug("model loaded", zap.String("type", bundle.Type), zap.Int("features", len(bundle.Model.Coefficients)))

	ds, err := pipeline.LoadDataset(opts.dataset, pipeline.Options{Encoding: opts.encoding})
	if err != nil {
		return nil, err
	}
	total := ds.Len()
	if opts.clean != "off" {
		policy := pipeline.PolicyDrop
		if opts.clean == "reject" {
			policy = pipeline.PolicyReject
		}
		cleaner := pipeline.NewDataCleaner(policy)
		cleaned, issues, err := cleaner.Clean(ds)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			logger.Debug("row dropped", zap.Int("row", issue.Row), zap.String("rule", issue.Rule), zap.String("reason", issue.Message))
		}
		ds = cleaned
	}
	logger.Debug("dataset loaded", zap.Int("rows", ds.Len()), zap.Int("dropped", total-ds.Len()))

	env, err := envelope.New(envelope.Config{Limits: opts.limits, Workers: opts.workers})
	if err != nil {
		return nil, err
	}
	h := harness.New(env, harness.WithWorkers(opts.workers), harness.WithLogger(logger))

	preds, proof, err := h.Prove(bundle.Input(ds.Features))
	if err != nil {
		return nil, err
	}
	metrics, err := ml.Evaluate(preds, ds.Labels)
	if err != nil {
		return nil, err
	}

	rep := &report{
		Rows:         len(preds),
		Dropped:      total - ds.Len(),
		Metrics:      metrics,
		Verified:     h.Verify(proof),
		OutputDigest: proof.OutputDigest,
	}
	rep.Stats = h.Stats()

	if opts.proofOut != "" {
		data, err := json.Marshal(proof)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(opts.proofOut, data, 0o644); err != nil {
			return nil, err
		}
	}
	if opts.dbPath != "" {
		if err := db.InitDB(opts.dbPath); err != nil {
			return nil, err
		}
		defer db.CloseDB()
		rep.RunID, err = db.SaveRun(db.Run{
			ModelName:    opts.modelType,
			ModelType:    opts.modelType,
			Status:       db.StatusCompleted,
			Rows:         rep.Rows,
			InputDigest:  proof.InputDigest,
			OutputDigest: proof.OutputDigest,
			Verified:     rep.Verified,
			Metrics:      &metrics,
		}, preds)
		if err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func printReport(w io.Writer, rep *report) {
	fmt.Fprintf(w, "rows=%d dropped=%d\n", rep.Rows, rep.Dropped)
	fmt.Fprintf(w, "mae=%.4f mse=%.4f rmse=%.4f r2=%.4f\n", rep.Metrics.MAE, rep.Metrics.MSE, rep.Metrics.RMSE, rep.Metrics.R2)
	fmt.Fprintf(w, "output_digest=%s verified=%t\n", rep.OutputDigest, rep.Verified)
	if rep.RunID != 0 {
		fmt.Fprintf(w, "run_id=%d\n", rep.RunID)
	}
}
