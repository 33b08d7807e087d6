package stream

import (
	"fmt"

	"github.com/BartekS5/streamkit/pkg/utils"
	"go.mongodb.org/mongo-driver/bson"
)

// BSON stores each record as one BSON document with its keys in sorted order,
// nested documents included, so equal records encode to equal bytes.
// Documents carry their own length prefix, so the artifact is their plain
// concatenation. Streams of this format are spooled before they are read.
type BSON struct{}

func (BSON) Kind() Kind         { return KindBinary }
func (BSON) Extension() string  { return "bson" }
func (BSON) MimeType() string   { return "application/bson" }
func (BSON) Strategy() Strategy { return Buffered }

func (BSON) Encode(r Record) ([]byte, error) {
	data, err := bson.Marshal(sortedDoc(r))
	if err != nil {
		return nil, fmt.Errorf("encoding bson record: %w", err)
	}
	return data, nil
}

func (BSON) Decode(data []byte) (Record, error) {
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding bson record: %w", err)
	}
	return Record(utils.NormalizeMap(m)), nil
}

func sortedDoc(m map[string]any) bson.D {
	doc := make(bson.D, 0, len(m))
	for _, k := range sortedKeys(m) {
		doc = append(doc, bson.E{Key: k, Value: sortedValue(m[k])})
	}
	return doc
}

func sortedValue(v any) any {
	switch t := v.(type) {
	case Record:
		return sortedDoc(t)
	case map[string]any:
		return sortedDoc(t)
	case bson.M:
		return sortedDoc(t)
	case []any:
		out := make(bson.A, len(t))
		for i, item := range t {
			out[i] = sortedValue(item)
		}
		return out
	default:
		return v
	}
}
