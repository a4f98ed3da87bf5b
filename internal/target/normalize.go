package target

import (
	"github.com/ugdata/mysql2mongo/internal/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalizeDocument converts BSON decode artifacts into plain Go values
// so field comparison sees time.Time, []any and map[string]any instead of
// driver types.
func normalizeDocument(raw bson.M) schema.Document {
	doc := make(schema.Document, len(raw))
	for k, v := range raw {
		doc[k] = normalizeValue(v)
	}
	return doc
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time()
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, elem := range val {
			out[elem.Key] = normalizeValue(elem.Value)
		}
		return out
	case primitive.Binary:
		return val.Data
	case primitive.Decimal128:
		return val.String()
	default:
		return v
	}
}
