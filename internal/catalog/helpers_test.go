package catalog

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// fmtDoc renders a filter document compactly for assertions.
func fmtDoc(doc bson.D) string {
	parts := make([]string, len(doc))
	for i, e := range doc {
		if sub, ok := e.Value.(bson.D); ok {
			parts[i] = e.Key + ":{" + fmtInner(sub) + "}"
			continue
		}
		parts[i] = fmt.Sprintf("%s:%v", e.Key, e.Value)
	}
	return strings.Join(parts, " ")
}

func fmtInner(doc bson.D) string {
	parts := make([]string, len(doc))
	for i, e := range doc {
		parts[i] = fmt.Sprintf("%s:%v", e.Key, e.Value)
	}
	return strings.Join(parts, " ")
}
