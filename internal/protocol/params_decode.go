package protocol

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/wire"
)

// ReadParameterTable reads a 16-bit count followed by that many
// (key, tagged value) pairs.
func ReadParameterTable(r *wire.Reader) (ParameterTable, error) {
	start := r.Offset()
	count, err := r.ReadUint16()
	if err != nil {
		return nil, decodeErr("parameter table count", start, err)
	}

	params := make(ParameterTable, count)
	for i := 0; i < int(count); i++ {
		off := r.Offset()
		key, err := r.ReadUint8()
		if err != nil {
			return nil, decodeErr("parameter key", off, err)
		}
		value, err := ReadParameter(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("parameter %d", key), off, err)
		}
		if _, ok := params[key]; ok {
			log.WithField("Key", key).Debug("Duplicate parameter key, keeping last")
		}
		params[key] = value
	}
	return params, nil
}

// ReadParameter reads one tag byte and the value it announces. An
// unrecognized tag yields Null and consumes nothing further.
func ReadParameter(r *wire.Reader) (Value, error) {
	off := r.Offset()
	raw, err := r.ReadUint8()
	if err != nil {
		return nil, decodeErr("parameter type", off, err)
	}

	t := ParamType(raw)
	if !t.Known() {
		log.WithFields(log.Fields{
			"Type":   raw,
			"Offset": off,
		}).Warn("Unrecognized parameter type, using null")
		return Null{}, nil
	}
	return readValue(r, t)
}

// readValue reads the payload of a value whose type is already known.
func readValue(r *wire.Reader, t ParamType) (Value, error) {
	off := r.Offset()
	v, err := readPayload(r, t)
	if err != nil {
		return nil, decodeErr(t.String(), off, err)
	}
	return v, nil
}

func readPayload(r *wire.Reader, t ParamType) (Value, error) {
	switch t {
	case TypeNull:
		return Null{}, nil
	case TypeByte:
		v, err := r.ReadUint8()
		return Byte(v), err
	case TypeBoolean:
		v, err := r.ReadUint8()
		return Boolean(v != 0), err
	case TypeShort:
		v, err := r.ReadInt16()
		return Short(v), err
	case TypeInteger:
		v, err := r.ReadInt32()
		return Integer(v), err
	case TypeLong:
		v, err := r.ReadInt64()
		return Long(v), err
	case TypeFloat:
		v, err := r.ReadUint32()
		return Float(math.Float32frombits(v)), err
	case TypeDouble:
		v, err := r.ReadUint64()
		return Double(math.Float64frombits(v)), err
	case TypeString:
		s, err := readString(r)
		return String(s), err
	case TypeByteArray:
		n, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("negative length %d: %w", n, wire.ErrOutOfRange)
		}
		b, err := r.Slice(int(n))
		return ByteArray(b), err
	case TypeIntegerArray:
		return readIntegerArray(r)
	case TypeStringArray:
		return readStringArray(r)
	case TypeObjectArray:
		return readObjectArray(r)
	case TypeArray:
		return readArray(r)
	case TypeDictionary:
		return readDictionary(r)
	case TypeHashtable:
		return readHashtable(r)
	case TypeCustom:
		return readCustom(r)
	case TypeEventData:
		return ReadEvent(r)
	case TypeOperationRequest:
		return ReadOperationRequest(r)
	case TypeOperationResponse:
		return ReadOperationResponse(r)
	default:
		// The payload length of an unknown type is unknown, so the
		// surrounding structure cannot be resynchronized.
		return nil, fmt.Errorf("%v: %w", t, ErrUnknownParamType)
	}
}

func readString(r *wire.Reader) (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.Slice(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readIntegerArray(r *wire.Reader) (IntegerArray, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make(IntegerArray, 0, n)
	for i := 0; i < int(n); i++ {
		v, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readStringArray(r *wire.Reader) (StringArray, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make(StringArray, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func readObjectArray(r *wire.Reader) (ObjectArray, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make(ObjectArray, 0, n)
	for i := 0; i < int(n); i++ {
		v, err := ReadParameter(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readArray(r *wire.Reader) (Array, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return Array{}, err
	}
	raw, err := r.ReadUint8()
	if err != nil {
		return Array{}, err
	}

	arr := Array{ElementType: ParamType(raw), Elements: make([]Value, 0, n)}
	for i := 0; i < int(n); i++ {
		v, err := readValue(r, arr.ElementType)
		if err != nil {
			return Array{}, err
		}
		arr.Elements = append(arr.Elements, v)
	}
	return arr, nil
}

func readDictionary(r *wire.Reader) (Dictionary, error) {
	keyType, err := r.ReadUint8()
	if err != nil {
		return Dictionary{}, err
	}
	valueType, err := r.ReadUint8()
	if err != nil {
		return Dictionary{}, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return Dictionary{}, err
	}

	dict := Dictionary{
		KeyType:   ParamType(keyType),
		ValueType: ParamType(valueType),
		Entries:   make([]Entry, 0, n),
	}
	for i := 0; i < int(n); i++ {
		k, err := readSlot(r, dict.KeyType)
		if err != nil {
			return Dictionary{}, err
		}
		v, err := readSlot(r, dict.ValueType)
		if err != nil {
			return Dictionary{}, err
		}
		dict.Entries = append(dict.Entries, Entry{Key: k, Value: v})
	}
	return dict, nil
}

// readSlot reads a dictionary key or value; an undeclared slot type means
// every entry carries its own tag.
func readSlot(r *wire.Reader, t ParamType) (Value, error) {
	if t == TypeUnknown {
		return ReadParameter(r)
	}
	return readValue(r, t)
}

func readHashtable(r *wire.Reader) (Hashtable, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make(Hashtable, 0, n)
	for i := 0; i < int(n); i++ {
		k, err := ReadParameter(r)
		if err != nil {
			return nil, err
		}
		v, err := ReadParameter(r)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: k, Value: v})
	}
	return out, nil
}

func readCustom(r *wire.Reader) (Custom, error) {
	code, err := r.ReadUint8()
	if err != nil {
		return Custom{}, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return Custom{}, err
	}
	data, err := r.Slice(int(n))
	if err != nil {
		return Custom{}, err
	}
	return Custom{Code: code, Data: data}, nil
}
