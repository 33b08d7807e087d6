package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConvertType converts a value to the named field type of a job mapping.
// Unknown types pass the value through.
func ConvertType(val interface{}, typ, format string) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch typ {
	case "datetime":
		return ConvertDateTime(val, format)
	case "int":
		n, err := ConvertToInt(val)
		return int64(n), err
	case "float":
		return ConvertToFloat(val)
	case "bool":
		return ConvertToBool(val)
	case "string", "enum":
		return fmt.Sprintf("%v", val), nil
	default:
		return val, nil
	}
}

// NormalizeValue folds decoder-specific representations into plain Go values:
// integers become int64, floats float64, BSON documents and arrays become
// map[string]any and []any, BSON datetimes become UTC time.Time.
func NormalizeValue(val interface{}) interface{} {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return float64(v)
	case []byte:
		return string(v)
	case primitive.DateTime:
		return v.Time().UTC()
	case time.Time:
		return v.UTC()
	case primitive.M:
		return NormalizeMap(v)
	case map[string]interface{}:
		return NormalizeMap(v)
	case primitive.D:
		out := make(map[string]interface{}, len(v))
		for _, e := range v {
			out[e.Key] = NormalizeValue(e.Value)
		}
		return out
	case primitive.A:
		return normalizeSlice(v)
	case []interface{}:
		return normalizeSlice(v)
	default:
		return val
	}
}

// NormalizeMap applies NormalizeValue to every value of m.
func NormalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = NormalizeValue(v)
	}
	return out
}

func normalizeSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = NormalizeValue(v)
	}
	return out
}

func ConvertDateTime(val interface{}, format string) (interface{}, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		if format != "" && format != "ISO8601" {
			formats = append([]string{format}, formats...)
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	default:
		return val, nil
	}
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		return int(i), err
	case primitive.DateTime:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	default:
		return math.NaN(), fmt.Errorf("cannot convert %T to float", val)
	}
}

func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	case []byte:
		return strconv.ParseBool(string(v))
	default:
		n, err := ConvertToInt(val)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", val)
		}
		return n != 0, nil
	}
}
