package checkpoints

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// binaryMagic prefixes every binary checkpoint. The payload after it is a
// protobuf-wire message with the field numbers below.
var binaryMagic = []byte("MLPCKPT1")

// Checkpoint message fields.
const (
	fieldArchitecture   protowire.Number = 1
	fieldWeights        protowire.Number = 2
	fieldTrainingState  protowire.Number = 3
	fieldOptimizerState protowire.Number = 4
	fieldMetadata       protowire.Number = 5
)

func (cs *CheckpointSaver) saveBinary(checkpoint *Checkpoint, path string) error {
	if err := os.WriteFile(path, EncodeBinary(checkpoint), 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

func (cs *CheckpointSaver) loadBinary(path string) (*Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	checkpoint, err := DecodeBinary(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint %s", path)
	}
	return checkpoint, nil
}

// EncodeBinary serializes a checkpoint into the binary format.
func EncodeBinary(checkpoint *Checkpoint) []byte {
	return appendCheckpoint(append([]byte(nil), binaryMagic...), checkpoint)
}

// DecodeBinary parses a checkpoint produced by EncodeBinary.
func DecodeBinary(raw []byte) (*Checkpoint, error) {
	if !bytes.HasPrefix(raw, binaryMagic) {
		return nil, errors.New("not a binary checkpoint: bad magic")
	}
	checkpoint := &Checkpoint{}
	if err := decodeCheckpoint(raw[len(binaryMagic):], checkpoint); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// --- encoding ---

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendPackedInts(b []byte, num protowire.Number, values []int) []byte {
	if len(values) == 0 {
		return b
	}
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	return appendMessage(b, num, packed)
}

func appendPackedDoubles(b []byte, num protowire.Number, values []float64) []byte {
	if len(values) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(values))
	for _, v := range values {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	return appendMessage(b, num, packed)
}

func appendCheckpoint(b []byte, c *Checkpoint) []byte {
	b = appendMessage(b, fieldArchitecture, encodeArchitecture(c.Architecture))
	for _, w := range c.Weights {
		b = appendMessage(b, fieldWeights, encodeWeight(w))
	}
	b = appendMessage(b, fieldTrainingState, encodeTrainingState(c.TrainingState))
	if c.OptimizerState != nil {
		b = appendMessage(b, fieldOptimizerState, encodeOptimizerState(c.OptimizerState))
	}
	return appendMessage(b, fieldMetadata, encodeMetadata(c.Metadata))
}

func encodeArchitecture(a Architecture) []byte {
	var b []byte
	b = appendInt(b, 1, int64(a.InputSize))
	b = appendInt(b, 2, int64(a.OutputSize))
	b = appendPackedInts(b, 3, a.HiddenSizes)
	b = appendString(b, 4, a.Activation)
	return appendString(b, 5, a.OutputMode)
}

func encodeWeight(w WeightTensor) []byte {
	var b []byte
	b = appendString(b, 1, w.Name)
	b = appendPackedInts(b, 2, w.Shape)
	b = appendPackedDoubles(b, 3, w.Data)
	b = appendInt(b, 4, int64(w.Layer))
	return appendString(b, 5, w.Type)
}

func encodeTrainingState(s TrainingState) []byte {
	var b []byte
	b = appendInt(b, 1, int64(s.Epoch))
	b = appendInt(b, 2, int64(s.Step))
	b = appendDouble(b, 3, s.LearningRate)
	b = appendDouble(b, 4, s.BestLoss)
	b = appendDouble(b, 5, s.BestAccuracy)
	return appendInt(b, 6, int64(s.TotalSteps))
}

func encodeOptimizerState(s *OptimizerState) []byte {
	var b []byte
	b = appendString(b, 1, s.Type)
	for _, key := range sortedKeys(s.Parameters) {
		var entry []byte
		entry = appendString(entry, 1, key)
		// zero hyperparameters are written explicitly
		entry = protowire.AppendTag(entry, 2, protowire.Fixed64Type)
		entry = protowire.AppendFixed64(entry, math.Float64bits(s.Parameters[key]))
		b = appendMessage(b, 2, entry)
	}
	for _, t := range s.StateData {
		var msg []byte
		msg = appendString(msg, 1, t.Name)
		msg = appendPackedInts(msg, 2, t.Shape)
		msg = appendPackedDoubles(msg, 3, t.Data)
		msg = appendString(msg, 4, t.StateType)
		b = appendMessage(b, 3, msg)
	}
	return b
}

func encodeMetadata(m CheckpointMetadata) []byte {
	var b []byte
	b = appendString(b, 1, m.Version)
	b = appendString(b, 2, m.Framework)
	if !m.CreatedAt.IsZero() {
		b = appendInt(b, 3, m.CreatedAt.UnixNano())
	}
	b = appendString(b, 4, m.RunID)
	b = appendString(b, 5, m.Description)
	for _, tag := range m.Tags {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, tag)
	}
	return b
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- decoding ---

// fieldDecoder consumes the value of one field and returns the number of
// bytes read, or zero to skip a field it does not know.
type fieldDecoder func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func decodeFields(b []byte, decode fieldDecoder) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := decode(num, typ, b)
		if err != nil {
			return errors.Wrapf(err, "field %d", num)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func wantType(got, want protowire.Type) error {
	if got != want {
		return errors.Errorf("wire type %d, expected %d", got, want)
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if err := wantType(typ, protowire.BytesType); err != nil {
		return nil, 0, err
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeInt(typ protowire.Type, b []byte) (int64, int, error) {
	if err := wantType(typ, protowire.VarintType); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return protowire.DecodeZigZag(v), n, nil
}

func consumeDouble(typ protowire.Type, b []byte) (float64, int, error) {
	if err := wantType(typ, protowire.Fixed64Type); err != nil {
		return 0, 0, err
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

func consumePackedInts(typ protowire.Type, b []byte) ([]int, int, error) {
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	var out []int
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		out = append(out, int(protowire.DecodeZigZag(v)))
		packed = packed[m:]
	}
	return out, n, nil
}

func consumePackedDoubles(typ protowire.Type, b []byte) ([]float64, int, error) {
	packed, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	if len(packed)%8 != 0 {
		return nil, 0, errors.Errorf("packed doubles length %d is not a multiple of 8", len(packed))
	}
	out := make([]float64, 0, len(packed)/8)
	for len(packed) > 0 {
		v, m := protowire.ConsumeFixed64(packed)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		out = append(out, math.Float64frombits(v))
		packed = packed[m:]
	}
	return out, n, nil
}

func decodeCheckpoint(b []byte, c *Checkpoint) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldArchitecture:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, errors.Wrap(decodeArchitecture(msg, &c.Architecture), "architecture")
		case fieldWeights:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var w WeightTensor
			if err := decodeWeight(msg, &w); err != nil {
				return 0, errors.Wrap(err, "weight")
			}
			c.Weights = append(c.Weights, w)
			return n, nil
		case fieldTrainingState:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, errors.Wrap(decodeTrainingState(msg, &c.TrainingState), "training state")
		case fieldOptimizerState:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			c.OptimizerState = &OptimizerState{Parameters: map[string]float64{}}
			return n, errors.Wrap(decodeOptimizerState(msg, c.OptimizerState), "optimizer state")
		case fieldMetadata:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, errors.Wrap(decodeMetadata(msg, &c.Metadata), "metadata")
		}
		return 0, nil
	})
}

func decodeArchitecture(b []byte, a *Architecture) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeInt(typ, b)
			a.InputSize = int(v)
			return n, err
		case 2:
			v, n, err := consumeInt(typ, b)
			a.OutputSize = int(v)
			return n, err
		case 3:
			v, n, err := consumePackedInts(typ, b)
			a.HiddenSizes = v
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, b)
			a.Activation = string(v)
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			a.OutputMode = string(v)
			return n, err
		}
		return 0, nil
	})
}

func decodeWeight(b []byte, w *WeightTensor) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			w.Name = string(v)
			return n, err
		case 2:
			v, n, err := consumePackedInts(typ, b)
			w.Shape = v
			return n, err
		case 3:
			v, n, err := consumePackedDoubles(typ, b)
			w.Data = v
			return n, err
		case 4:
			v, n, err := consumeInt(typ, b)
			w.Layer = int(v)
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			w.Type = string(v)
			return n, err
		}
		return 0, nil
	})
}

func decodeTrainingState(b []byte, s *TrainingState) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeInt(typ, b)
			s.Epoch = int(v)
			return n, err
		case 2:
			v, n, err := consumeInt(typ, b)
			s.Step = int(v)
			return n, err
		case 3:
			v, n, err := consumeDouble(typ, b)
			s.LearningRate = v
			return n, err
		case 4:
			v, n, err := consumeDouble(typ, b)
			s.BestLoss = v
			return n, err
		case 5:
			v, n, err := consumeDouble(typ, b)
			s.BestAccuracy = v
			return n, err
		case 6:
			v, n, err := consumeInt(typ, b)
			s.TotalSteps = int(v)
			return n, err
		}
		return 0, nil
	})
}

func decodeOptimizerState(b []byte, s *OptimizerState) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			s.Type = string(v)
			return n, err
		case 2:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var (
				key   string
				value float64
			)
			err = decodeFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					v, n, err := consumeBytes(typ, b)
					key = string(v)
					return n, err
				case 2:
					v, n, err := consumeDouble(typ, b)
					value = v
					return n, err
				}
				return 0, nil
			})
			if err != nil {
				return 0, errors.Wrap(err, "parameter")
			}
			s.Parameters[key] = value
			return n, nil
		case 3:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var t OptimizerTensor
			err = decodeFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					v, n, err := consumeBytes(typ, b)
					t.Name = string(v)
					return n, err
				case 2:
					v, n, err := consumePackedInts(typ, b)
					t.Shape = v
					return n, err
				case 3:
					v, n, err := consumePackedDoubles(typ, b)
					t.Data = v
					return n, err
				case 4:
					v, n, err := consumeBytes(typ, b)
					t.StateType = string(v)
					return n, err
				}
				return 0, nil
			})
			if err != nil {
				return 0, errors.Wrap(err, "state tensor")
			}
			s.StateData = append(s.StateData, t)
			return n, nil
		}
		return 0, nil
	})
}

func decodeMetadata(b []byte, m *CheckpointMetadata) error {
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			m.Version = string(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			m.Framework = string(v)
			return n, err
		case 3:
			v, n, err := consumeInt(typ, b)
			m.CreatedAt = time.Unix(0, v).UTC()
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, b)
			m.RunID = string(v)
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			m.Description = string(v)
			return n, err
		case 6:
			v, n, err := consumeBytes(typ, b)
			m.Tags = append(m.Tags, string(v))
			return n, err
		}
		return 0, nil
	})
}
