package ml

import (
	"strings"
)

// FeatureNameSpec names the base columns a model was trained on and the
// engineered columns it consumes. Output names take one of three forms:
//
//	"price"          passthrough of a base column
//	"price^2"        square of a base column
//	"price quantity" product of two base columns
type FeatureNameSpec struct {
	BaseNames   []string `json:"base_names"`
	OutputNames []string `json:"feature_names"`
}

type termKind uint8

const (
	termPassthrough termKind = iota
	termSquare
	termProduct
)

type featureTerm struct {
	kind  termKind
	left  int
	right int
}

// FeatureExpander is a compiled FeatureNameSpec: every output name has been
// resolved to base column indices, so Expand cannot fail on a name.
type FeatureExpander struct {
	baseWidth int
	terms     []featureTerm
}

func CompileFeatureSpec(spec FeatureNameSpec) (*FeatureExpander, error) {
	if len(spec.BaseNames) == 0 {
		return nil, emptyf("feature spec has no base names")
	}
	if len(spec.OutputNames) == 0 {
		return nil, emptyf("feature spec has no output names")
	}

	index := make(map[string]int, len(spec.BaseNames))
	for i, name := range spec.BaseNames {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}

	terms := make([]featureTerm, len(spec.OutputNames))
	for j, name := range spec.OutputNames {
		term, err := parseTerm(name, index)
		if err != nil {
			return nil, err
		}
		terms[j] = term
	}
	return &FeatureExpander{baseWidth: len(spec.BaseNames), terms: terms}, nil
}

func parseTerm(name string, index map[string]int) (featureTerm, error) {
	lookup := func(base string) (int, error) {
		idx, ok := index[base]
		if !ok {
			return 0, unknownName(base)
		}
		return idx, nil
	}

	if base, ok := strings.CutSuffix(name, "^2"); ok {
		idx, err := lookup(base)
		if err != nil {
			return featureTerm{}, err
		}
		return featureTerm{kind: termSquare, left: idx, right: idx}, nil
	}

	if strings.Contains(name, " ") {
		parts := strings.Split(name, " ")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return featureTerm{}, unknownName(name)
		}
		left, err := lookup(parts[0])
		if err != nil {
			return featureTerm{}, err
		}
		right, err := lookup(parts[1])
		if err != nil {
			return featureTerm{}, err
		}
		return featureTerm{kind: termProduct, left: left, right: right}, nil
	}

	idx, err := lookup(name)
	if err != nil {
		return featureTerm{}, err
	}
	return featureTerm{kind: termPassthrough, left: idx}, nil
}

// InputWidth is the number of base features each row must have.
func (e *FeatureExpander) InputWidth() int {
	return e.baseWidth
}

// OutputWidth is the number of engineered features produced per row.
func (e *FeatureExpander) OutputWidth() int {
	return len(e.terms)
}

func (e *FeatureExpander) Expand(row []float32) ([]float32, error) {
	if len(row) != e.baseWidth {
		return nil, dimensionf("row has width %d, feature spec expects %d base features", len(row), e.baseWidth)
	}
	out := make([]float32, len(e.terms))
	for j, term := range e.terms {
		out[j] = term.apply(row)
	}
	return out, nil
}

func (e *FeatureExpander) Transform(matrix FeatureMatrix) (FeatureMatrix, error) {
	if len(matrix) == 0 {
		return nil, emptyf("matrix has no rows")
	}
	out := make(FeatureMatrix, len(matrix))
	for i, row := range matrix {
		expanded, err := e.Expand(row)
		if err != nil {
			return nil, dimensionf("row %d has width %d, feature spec expects %d base features", i, len(row), e.baseWidth)
		}
		out[i] = expanded
	}
	return out, nil
}

// ExpandRow resolves outNames against baseNames and expands a single row.
// Callers expanding many rows should compile the spec once instead.
func ExpandRow(row []float32, baseNames, outNames []string) ([]float32, error) {
	expander, err := CompileFeatureSpec(FeatureNameSpec{BaseNames: baseNames, OutputNames: outNames})
	if err != nil {
		return nil, err
	}
	return expander.Expand(row)
}
