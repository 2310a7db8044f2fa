package catalog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agnvar/agnvar/internal/frame"
)

// MongoCatalog implements Catalog over a MongoDB collection holding one
// document per galaxy.
type MongoCatalog struct {
	client     *mongo.Client
	database   string
	collection string
	columns    ColumnMap
}

// NewMongoCatalog connects to the given MongoDB instance.
func NewMongoCatalog(ctx context.Context, connectionString, database, collection string, columns ColumnMap) (*MongoCatalog, error) {
	opts := options.Client().ApplyURI(connectionString)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	return &MongoCatalog{
		client:     client,
		database:   database,
		collection: collection,
		columns:    columns,
	}, nil
}

var mongoOps = map[Op]string{
	OpGE: "$gte",
	OpLE: "$lte",
	OpGT: "$gt",
	OpLT: "$lt",
	OpEQ: "$eq",
}

// BuildFilter converts range predicates into a query document. Predicates on
// the same column are merged into one sub-document.
func BuildFilter(filters []Filter, columns ColumnMap) bson.D {
	doc := bson.D{}
	index := make(map[string]int)
	for _, f := range filters {
		field := columns.Resolve(f.Column)
		cond := bson.E{Key: mongoOps[f.Op], Value: f.Value}
		if i, ok := index[field]; ok {
			doc[i].Value = append(doc[i].Value.(bson.D), cond)
			continue
		}
		index[field] = len(doc)
		doc = append(doc, bson.E{Key: field, Value: bson.D{cond}})
	}
	return doc
}

// BuildProjection selects only the requested quantities.
func BuildProjection(names []string, columns ColumnMap) bson.D {
	proj := bson.D{{Key: "_id", Value: 0}}
	for _, n := range names {
		proj = append(proj, bson.E{Key: columns.Resolve(n), Value: 1})
	}
	return proj
}

func (m *MongoCatalog) GetQuantities(ctx context.Context, names []string, filters []string) (*frame.Frame, error) {
	parsed, err := ParseFilters(filters)
	if err != nil {
		return nil, err
	}

	coll := m.client.Database(m.database).Collection(m.collection)
	opts := options.Find().SetProjection(BuildProjection(names, m.columns))
	cursor, err := coll.Find(ctx, BuildFilter(parsed, m.columns), opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s.%s: %w", m.database, m.collection, err)
	}
	defer cursor.Close(ctx)

	b := newBuilder(names)
	vals := make([]any, len(names))
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
		for i, n := range names {
			vals[i] = doc[m.columns.Resolve(n)]
		}
		if err := b.add(vals); err != nil {
			return nil, fmt.Errorf("converting document: %w", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating cursor: %w", err)
	}
	return b.frame()
}

func (m *MongoCatalog) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
