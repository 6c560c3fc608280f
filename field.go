package fieldz

// Field is a named value declared on a span or event.
type Field struct {
	Key   string
	Value Value
}

// Float64 constructs a float field.
func Float64(key string, v float64) Field { return Field{Key: key, Value: Float64Value(v)} }

// Int constructs a signed integer field.
func Int(key string, v int) Field { return Field{Key: key, Value: Int64Value(int64(v))} }

// Int64 constructs a signed integer field.
func Int64(key string, v int64) Field { return Field{Key: key, Value: Int64Value(v)} }

// Uint64 constructs an unsigned integer field.
func Uint64(key string, v uint64) Field { return Field{Key: key, Value: Uint64Value(v)} }

// I128 constructs a signed 128-bit integer field.
func I128(key string, v Int128) Field { return Field{Key: key, Value: Int128Value(v)} }

// U128 constructs an unsigned 128-bit integer field.
func U128(key string, v Uint128) Field { return Field{Key: key, Value: Uint128Value(v)} }

// Bool constructs a boolean field.
func Bool(key string, v bool) Field { return Field{Key: key, Value: BoolValue(v)} }

// String constructs a string field.
func String(key string, v string) Field { return Field{Key: key, Value: StringValue(v)} }

// Err constructs a field holding err's Error() text.
func Err(key string, err error) Field { return Field{Key: key, Value: ErrorValue(err)} }

// Debug constructs a field holding v's Go-syntax representation.
func Debug(key string, v any) Field { return Field{Key: key, Value: DebugValue(v)} }

// Any picks the narrowest kind for v. Types outside the explicit kinds
// fall back to Debug, so Any never fails.
func Any(key string, v any) Field {
	switch x := v.(type) {
	case Value:
		return Field{Key: key, Value: x}
	case float64:
		return Float64(key, x)
	case float32:
		return Float64(key, float64(x))
	case int:
		return Int64(key, int64(x))
	case int8:
		return Int64(key, int64(x))
	case int16:
		return Int64(key, int64(x))
	case int32:
		return Int64(key, int64(x))
	case int64:
		return Int64(key, x)
	case uint:
		return Uint64(key, uint64(x))
	case uint8:
		return Uint64(key, uint64(x))
	case uint16:
		return Uint64(key, uint64(x))
	case uint32:
		return Uint64(key, uint64(x))
	case uint64:
		return Uint64(key, x)
	case uintptr:
		return Uint64(key, uint64(x))
	case Int128:
		return I128(key, x)
	case Uint128:
		return U128(key, x)
	case bool:
		return Bool(key, x)
	case string:
		return String(key, x)
	case error:
		return Err(key, x)
	default:
		return Debug(key, v)
	}
}
