package protocol

import (
	"fmt"
)

type ParamType uint8

const (
	TypeUnknown           ParamType = 0
	TypeNull              ParamType = 42
	TypeDictionary        ParamType = 68
	TypeStringArray       ParamType = 97
	TypeByte              ParamType = 98
	TypeCustom            ParamType = 99
	TypeDouble            ParamType = 100
	TypeEventData         ParamType = 101
	TypeFloat             ParamType = 102
	TypeHashtable         ParamType = 104
	TypeInteger           ParamType = 105
	TypeShort             ParamType = 107
	TypeLong              ParamType = 108
	TypeIntegerArray      ParamType = 110
	TypeBoolean           ParamType = 111
	TypeOperationResponse ParamType = 112
	TypeOperationRequest  ParamType = 113
	TypeString            ParamType = 115
	TypeByteArray         ParamType = 120
	TypeArray             ParamType = 121
	TypeObjectArray       ParamType = 122
)

var paramTypeNames = map[ParamType]string{
	TypeUnknown:           "unknown",
	TypeNull:              "null",
	TypeDictionary:        "dictionary",
	TypeStringArray:       "stringArray",
	TypeByte:              "byte",
	TypeCustom:            "custom",
	TypeDouble:            "double",
	TypeEventData:         "eventData",
	TypeFloat:             "float",
	TypeHashtable:         "hashtable",
	TypeInteger:           "integer",
	TypeShort:             "short",
	TypeLong:              "long",
	TypeIntegerArray:      "integerArray",
	TypeBoolean:           "boolean",
	TypeOperationResponse: "operationResponse",
	TypeOperationRequest:  "operationRequest",
	TypeString:            "string",
	TypeByteArray:         "byteArray",
	TypeArray:             "array",
	TypeObjectArray:       "objectArray",
}

// Known reports whether t is a tag with a defined payload layout.
func (t ParamType) Known() bool {
	_, ok := paramTypeNames[t]
	return ok && t != TypeUnknown
}

func (t ParamType) String() string {
	if name, ok := paramTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ParamType(%d)", uint8(t))
}

// Value is one self-describing parameter. The concrete types in this file,
// plus Event, OperationRequest and OperationResponse, are the only values
// the codec can encode.
type Value interface {
	Type() ParamType
}

type (
	Null         struct{}
	Byte         uint8
	Short        int16
	Integer      int32
	Long         int64
	Float        float32
	Double       float64
	Boolean      bool
	String       string
	ByteArray    []byte
	IntegerArray []int32
	StringArray  []string
	ObjectArray  []Value
	Hashtable    []Entry
)

// Array is a homogeneous array; its elements are written without tags.
type Array struct {
	ElementType ParamType
	Elements    []Value
}

// Dictionary declares its key and value types once; entries are written
// without tags unless a declared type is TypeUnknown.
type Dictionary struct {
	KeyType   ParamType
	ValueType ParamType
	Entries   []Entry
}

type Entry struct {
	Key   Value
	Value Value
}

// Custom is an application-defined blob identified by a one byte code.
type Custom struct {
	Code uint8
	Data []byte
}

func (Null) Type() ParamType         { return TypeNull }
func (Byte) Type() ParamType         { return TypeByte }
func (Short) Type() ParamType        { return TypeShort }
func (Integer) Type() ParamType      { return TypeInteger }
func (Long) Type() ParamType         { return TypeLong }
func (Float) Type() ParamType        { return TypeFloat }
func (Double) Type() ParamType       { return TypeDouble }
func (Boolean) Type() ParamType      { return TypeBoolean }
func (String) Type() ParamType       { return TypeString }
func (ByteArray) Type() ParamType    { return TypeByteArray }
func (IntegerArray) Type() ParamType { return TypeIntegerArray }
func (StringArray) Type() ParamType  { return TypeStringArray }
func (ObjectArray) Type() ParamType  { return TypeObjectArray }
func (Hashtable) Type() ParamType    { return TypeHashtable }
func (Array) Type() ParamType        { return TypeArray }
func (Dictionary) Type() ParamType   { return TypeDictionary }
func (Custom) Type() ParamType       { return TypeCustom }

// NewArray builds a homogeneous array typed after its first element. An
// empty array is typed null.
func NewArray(elements ...Value) (Array, error) {
	if len(elements) == 0 {
		return Array{ElementType: TypeNull, Elements: []Value{}}, nil
	}
	t := typeOf(elements[0])
	for i, e := range elements {
		if typeOf(e) != t {
			return Array{}, fmt.Errorf("element %d is %v, array is %v: %w", i, typeOf(e), t, ErrTypeMismatch)
		}
	}
	return Array{ElementType: t, Elements: elements}, nil
}

// ParameterTable maps a byte key to a value. Keys are unique; when a decoded
// table repeats a key the last value wins.
type ParameterTable map[uint8]Value

func typeOf(v Value) ParamType {
	if v == nil {
		return TypeNull
	}
	return v.Type()
}
