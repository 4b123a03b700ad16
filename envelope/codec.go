package envelope

import (
	"encoding/binary"
	"math"

	"salesproof/ml"
)

// Canonical little-endian layout of a ModelInput:
//
//	u32 n, n×f32 mean
//	u32 n, n×f32 scale
//	u32 m, m×f32 coefficients, f32 intercept
//	strings model feature names
//	u8 has-features [strings base names, strings output names]
//	u32 rows, rows×(u32 width, width×f32)
//
// where strings is u32 count, count×(u32 len, len bytes). Rows carry their
// own width so a ragged matrix survives the round trip and is rejected by
// the pipeline rather than the codec.

// InputSize is the length EncodeInput would produce, computed without
// allocating.
func InputSize(input ml.ModelInput) int64 {
	size := floatsSize(input.Scaler.Mean) + floatsSize(input.Scaler.Scale)
	size += floatsSize(input.Model.Coefficients) + float32Bytes
	size += stringsSize(input.Model.FeatureNames)
	size++
	if input.Features != nil {
		size += stringsSize(input.Features.BaseNames) + stringsSize(input.Features.OutputNames)
	}
	size += 4
	for _, row := range input.Matrix {
		size += floatsSize(row)
	}
	return size
}

// OutputSize is the length of an encoded prediction vector of rows entries.
func OutputSize(rows int) int64 {
	return 4 + int64(rows)*float32Bytes
}

func floatsSize(v []float32) int64 {
	return 4 + int64(len(v))*float32Bytes
}

func stringsSize(v []string) int64 {
	size := int64(4)
	for _, s := range v {
		size += 4 + int64(len(s))
	}
	return size
}

func EncodeInput(input ml.ModelInput) []byte {
	buf := make([]byte, 0, InputSize(input))
	buf = appendFloats(buf, input.Scaler.Mean)
	buf = appendFloats(buf, input.Scaler.Scale)
	buf = appendFloats(buf, input.Model.Coefficients)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(input.Model.Intercept))
	buf = appendStrings(buf, input.Model.FeatureNames)
	if input.Features != nil {
		buf = append(buf, 1)
		buf = appendStrings(buf, input.Features.BaseNames)
		buf = appendStrings(buf, input.Features.OutputNames)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(input.Matrix)))
	for _, row := range input.Matrix {
		buf = appendFloats(buf, row)
	}
	return buf
}

func EncodeOutput(preds ml.PredictionVector) []byte {
	buf := make([]byte, 0, OutputSize(len(preds)))
	return appendFloats(buf, preds)
}

func appendFloats(buf []byte, v []float32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func appendStrings(buf []byte, v []string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
	for _, s := range v {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf)-r.off < 4 {
		r.err = ml.Parsef("truncated at byte %d", r.off)
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u8() byte {
	if r.err != nil {
		return 0
	}
	if r.off >= len(r.buf) {
		r.err = ml.Parsef("truncated at byte %d", r.off)
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

// count reads a length prefix and checks that at least count*unit bytes
// remain, so a corrupt prefix cannot trigger a huge allocation.
func (r *reader) count(unit int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if uint64(n)*uint64(unit) > uint64(len(r.buf)-r.off) {
		r.err = ml.Parsef("length %d at byte %d exceeds remaining input", n, r.off-4)
		return 0
	}
	return int(n)
}

func (r *reader) floats() []float32 {
	n := r.count(float32Bytes)
	if r.err != nil {
		return nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(r.u32())
	}
	return v
}

func (r *reader) strings() []string {
	n := r.count(4)
	if r.err != nil {
		return nil
	}
	if n == 0 {
		return nil
	}
	v := make([]string, n)
	for i := range v {
		l := r.count(1)
		if r.err != nil {
			return nil
		}
		v[i] = string(r.buf[r.off : r.off+l])
		r.off += l
	}
	return v
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return ml.Parsef("%d trailing bytes", len(r.buf)-r.off)
	}
	return nil
}

func DecodeInput(data []byte) (ml.ModelInput, error) {
	r := &reader{buf: data}
	var input ml.ModelInput
	input.Scaler.Mean = r.floats()
	input.Scaler.Scale = r.floats()
	input.Model.Coefficients = r.floats()
	input.Model.Intercept = math.Float32frombits(r.u32())
	input.Model.FeatureNames = r.strings()
	switch flag := r.u8(); flag {
	case 0:
	case 1:
		input.Features = &ml.FeatureNameSpec{
			BaseNames:   r.strings(),
			OutputNames: r.strings(),
		}
	default:
		if r.err == nil {
			r.err = ml.Parsef("bad feature flag %d", flag)
		}
	}
	rows := r.count(4)
	if r.err == nil {
		input.Matrix = make(ml.FeatureMatrix, rows)
		for i := range input.Matrix {
			input.Matrix[i] = r.floats()
		}
	}
	if err := r.done(); err != nil {
		return ml.ModelInput{}, err
	}
	return input, nil
}

func DecodeOutput(data []byte) (ml.PredictionVector, error) {
	r := &reader{buf: data}
	preds := r.floats()
	if err := r.done(); err != nil {
		return nil, err
	}
	return ml.PredictionVector(preds), nil
}
