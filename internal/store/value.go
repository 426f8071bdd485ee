package store

import (
	"fmt"
	"strconv"
	"time"
)

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a field that should carry the write time. The REST
// upsert path has no field transforms, so it is stamped at encode time.
var ServerTimestamp = serverTimestamp{}

// ToWire converts a native value into the document store's tagged wire
// object. Conversion is total over the value types this system writes:
// strings, integers, floats, booleans, nil, time.Time, []interface{},
// map[string]interface{} and the ServerTimestamp sentinel.
func ToWire(v interface{}) (map[string]interface{}, error) {
	switch x := v.(type) {
	case nil:
		return map[string]interface{}{"nullValue": nil}, nil
	case string:
		return map[string]interface{}{"stringValue": x}, nil
	case bool:
		return map[string]interface{}{"booleanValue": x}, nil
	case int:
		return map[string]interface{}{"integerValue": strconv.FormatInt(int64(x), 10)}, nil
	case int32:
		return map[string]interface{}{"integerValue": strconv.FormatInt(int64(x), 10)}, nil
	case int64:
		return map[string]interface{}{"integerValue": strconv.FormatInt(x, 10)}, nil
	case float32:
		return map[string]interface{}{"doubleValue": float64(x)}, nil
	case float64:
		return map[string]interface{}{"doubleValue": x}, nil
	case time.Time:
		return map[string]interface{}{"timestampValue": x.UTC().Format(time.RFC3339Nano)}, nil
	case serverTimestamp:
		return map[string]interface{}{"timestampValue": time.Now().UTC().Format(time.RFC3339Nano)}, nil
	case []interface{}:
		values := make([]interface{}, 0, len(x))
		for _, el := range x {
			w, err := ToWire(el)
			if err != nil {
				return nil, err
			}
			values = append(values, w)
		}
		return map[string]interface{}{"arrayValue": map[string]interface{}{"values": values}}, nil
	case map[string]interface{}:
		fields, err := ToWireFields(x)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"mapValue": map[string]interface{}{"fields": fields}}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToWireFields converts a native field map into a wire field map.
func ToWireFields(fields map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		w, err := ToWire(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = w
	}
	return out, nil
}

// FromWire converts a tagged wire object back into a native value. Integers
// come back as int64, doubles as float64, timestamps as time.Time.
func FromWire(w map[string]interface{}) (interface{}, error) {
	for tag, raw := range w {
		switch tag {
		case "nullValue":
			return nil, nil
		case "stringValue":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("stringValue is %T", raw)
			}
			return s, nil
		case "booleanValue":
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("booleanValue is %T", raw)
			}
			return b, nil
		case "integerValue":
			// the wire encodes integers as decimal strings
			switch n := raw.(type) {
			case string:
				return strconv.ParseInt(n, 10, 64)
			case float64:
				return int64(n), nil
			default:
				return nil, fmt.Errorf("integerValue is %T", raw)
			}
		case "doubleValue":
			f, ok := raw.(float64)
			if !ok {
				return nil, fmt.Errorf("doubleValue is %T", raw)
			}
			return f, nil
		case "timestampValue":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("timestampValue is %T", raw)
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("bad timestamp %q: %w", s, err)
			}
			return t.UTC(), nil
		case "arrayValue":
			m, _ := raw.(map[string]interface{})
			rawValues, _ := m["values"].([]interface{})
			values := make([]interface{}, 0, len(rawValues))
			for _, el := range rawValues {
				ew, ok := el.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("array element is %T", el)
				}
				v, err := FromWire(ew)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			return values, nil
		case "mapValue":
			m, _ := raw.(map[string]interface{})
			rawFields, _ := m["fields"].(map[string]interface{})
			return FromWireFields(rawFields)
		default:
			return nil, fmt.Errorf("unsupported wire tag %q", tag)
		}
	}
	return nil, fmt.Errorf("empty wire value")
}

// FromWireFields converts a wire field map back into a native field map.
func FromWireFields(fields map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for k, raw := range fields {
		w, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q is %T", k, raw)
		}
		v, err := FromWire(w)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
