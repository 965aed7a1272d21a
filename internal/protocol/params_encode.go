package protocol

import (
	"fmt"
	"math"
	"sort"

	"github.com/Pablu23/photon/internal/wire"
)

// WriteParameterTable writes the table in ascending key order so equal
// tables always encode to equal bytes.
func WriteParameterTable(w *wire.Writer, params ParameterTable) error {
	if len(params) > math.MaxUint16 {
		return fmt.Errorf("parameter table with %d entries: %w", len(params), ErrValueTooLarge)
	}

	keys := make([]uint8, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	w.WriteUint16(uint16(len(params)))
	for _, k := range keys {
		w.WriteUint8(k)
		if err := WriteParameter(w, params[k]); err != nil {
			return fmt.Errorf("parameter %d: %w", k, err)
		}
	}
	return nil
}

// WriteParameter writes the value's tag followed by its payload. A nil
// value is written as null.
func WriteParameter(w *wire.Writer, v Value) error {
	if v == nil {
		v = Null{}
	}
	t := v.Type()
	if !t.Known() {
		return fmt.Errorf("%T with type %v: %w", v, t, ErrUnsupportedValue)
	}
	w.WriteUint8(uint8(t))
	return writeValue(w, v, t)
}

// writeValue writes the payload of v without a tag. v must be of type t.
func writeValue(w *wire.Writer, v Value, t ParamType) error {
	if v == nil {
		v = Null{}
	}
	if v.Type() != t {
		return fmt.Errorf("%v in a %v slot: %w", v.Type(), t, ErrTypeMismatch)
	}

	switch v := v.(type) {
	case Null:
	case Byte:
		w.WriteUint8(uint8(v))
	case Boolean:
		if v {
			w.WriteUint8(1)
		} else {
			w.WriteUint8(0)
		}
	case Short:
		w.WriteInt16(int16(v))
	case Integer:
		w.WriteInt32(int32(v))
	case Long:
		w.WriteInt64(int64(v))
	case Float:
		w.WriteUint32(math.Float32bits(float32(v)))
	case Double:
		w.WriteUint64(math.Float64bits(float64(v)))
	case String:
		return w.WriteBytes16([]byte(v))
	case ByteArray:
		return w.WriteBytes32(v)
	case IntegerArray:
		if err := writeCount(w, len(v)); err != nil {
			return err
		}
		for _, i := range v {
			w.WriteInt32(i)
		}
	case StringArray:
		if err := writeCount(w, len(v)); err != nil {
			return err
		}
		for _, s := range v {
			if err := w.WriteBytes16([]byte(s)); err != nil {
				return err
			}
		}
	case ObjectArray:
		if err := writeCount(w, len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := WriteParameter(w, e); err != nil {
				return err
			}
		}
	case Array:
		return writeArray(w, v)
	case Dictionary:
		return writeDictionary(w, v)
	case Hashtable:
		if err := writeCount(w, len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := WriteParameter(w, e.Key); err != nil {
				return err
			}
			if err := WriteParameter(w, e.Value); err != nil {
				return err
			}
		}
	case Custom:
		w.WriteUint8(v.Code)
		return w.WriteBytes16(v.Data)
	case Event:
		return v.write(w)
	case OperationRequest:
		return v.write(w)
	case OperationResponse:
		return v.write(w)
	default:
		return fmt.Errorf("%T: %w", v, ErrUnsupportedValue)
	}
	return nil
}

func writeCount(w *wire.Writer, n int) error {
	if n > math.MaxUint16 {
		return fmt.Errorf("%d elements: %w", n, ErrValueTooLarge)
	}
	w.WriteUint16(uint16(n))
	return nil
}

func writeArray(w *wire.Writer, a Array) error {
	if err := writeCount(w, len(a.Elements)); err != nil {
		return err
	}
	et := a.ElementType
	if et == TypeUnknown && len(a.Elements) == 0 {
		et = TypeNull
	}
	if !et.Known() {
		return fmt.Errorf("array of %v: %w", et, ErrUnsupportedValue)
	}
	w.WriteUint8(uint8(et))
	for i, e := range a.Elements {
		if err := writeValue(w, e, et); err != nil {
			return fmt.Errorf("array element %d: %w", i, err)
		}
	}
	return nil
}

// writeDictionary writes the declared key type and value type separately.
func writeDictionary(w *wire.Writer, d Dictionary) error {
	w.WriteUint8(uint8(d.KeyType))
	w.WriteUint8(uint8(d.ValueType))
	if err := writeCount(w, len(d.Entries)); err != nil {
		return err
	}
	for i, e := range d.Entries {
		if err := writeSlot(w, e.Key, d.KeyType); err != nil {
			return fmt.Errorf("dictionary key %d: %w", i, err)
		}
		if err := writeSlot(w, e.Value, d.ValueType); err != nil {
			return fmt.Errorf("dictionary value %d: %w", i, err)
		}
	}
	return nil
}

func writeSlot(w *wire.Writer, v Value, t ParamType) error {
	if t == TypeUnknown {
		return WriteParameter(w, v)
	}
	return writeValue(w, v, t)
}
