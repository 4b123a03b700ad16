package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"salesproof/ml"
)

func TestInputSizeMatchesEncoding(t *testing.T) {
	for _, input := range []ml.ModelInput{scenarioInput(), randomInput(5, false), randomInput(5, true), {}} {
		require.Equal(t, InputSize(input), int64(len(EncodeInput(input))))
	}
}

func TestEncodeDecodeInput(t *testing.T) {
	input := randomInput(3, true)
	input.Matrix = append(input.Matrix, []float32{1})

	encoded := EncodeInput(input)
	decoded, err := DecodeInput(encoded)
	require.NoError(t, err)
	require.Equal(t, encoded, EncodeInput(decoded))
	require.Equal(t, input.Features.BaseNames, decoded.Features.BaseNames)
	require.Equal(t, input.Model.FeatureNames, decoded.Model.FeatureNames)
	require.Len(t, decoded.Matrix, 4)
	require.Equal(t, []float32{1}, decoded.Matrix[3])
}

func TestDecodeInputRejectsCorruption(t *testing.T) {
	encoded := EncodeInput(scenarioInput())

	_, err := DecodeInput(encoded[:len(encoded)-1])
	require.ErrorIs(t, err, ml.ErrParse)

	_, err = DecodeInput(append(append([]byte(nil), encoded...), 0))
	require.ErrorIs(t, err, ml.ErrParse)

	huge := append([]byte(nil), encoded...)
	huge[0], huge[1], huge[2], huge[3] = 0xff, 0xff, 0xff, 0x7f
	_, err = DecodeInput(huge)
	require.ErrorIs(t, err, ml.ErrParse)

	_, err = DecodeInput(nil)
	require.ErrorIs(t, err, ml.ErrParse)
}

func TestEncodeDecodeOutput(t *testing.T) {
	preds := ml.PredictionVector{5.5, -0, 3.25}
	encoded := EncodeOutput(preds)
	require.Len(t, encoded, int(OutputSize(3)))

	decoded, err := DecodeOutput(encoded)
	require.NoError(t, err)
	require.Equal(t, preds, decoded)

	_, err = DecodeOutput(encoded[:5])
	require.ErrorIs(t, err, ml.ErrParse)
}
