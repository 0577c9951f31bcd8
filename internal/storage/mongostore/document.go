package mongostore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"fintrack/internal/core"
)

func docID(userID, key string) string {
	return userID + "/" + key
}

func toDocument(userID, key string, rec core.Record) bson.M {
	doc := make(bson.M, len(rec)+3)
	for k, v := range rec {
		doc[k] = v
	}
	doc[fieldDocID] = docID(userID, key)
	doc[fieldUserID] = userID
	doc[fieldEntryKey] = key
	return doc
}

func fromDocument(doc bson.M) (string, core.Record, error) {
	key, ok := doc[fieldEntryKey].(string)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("document %v has no entry key", doc[fieldDocID])
	}
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case fieldDocID, fieldUserID, fieldEntryKey:
			continue
		}
		fields[k] = plain(v)
	}
	rec, err := core.NormalizeRecord(fields)
	if err != nil {
		return "", nil, fmt.Errorf("document %v: %w", doc[fieldDocID], err)
	}
	return key, rec, nil
}

// plain converts driver container types into plain maps and slices.
func plain(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
