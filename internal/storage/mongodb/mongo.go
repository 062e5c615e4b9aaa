// Package mongodb implements the document persistence layer on the official
// MongoDB driver. This file contains connection bootstrapping, index setup,
// and the error shapes the HTTP error renderer classifies structurally
// (CastError for malformed ObjectIDs, duplicate-key extraction for unique
// index violations).
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvasilakos/go-api-starter/internal/config"
	"github.com/mvasilakos/go-api-starter/internal/domain"
)

// Connect dials MongoDB, verifies the connection with a ping, and bootstraps
// collection indexes. The returned closer disconnects the underlying client;
// call it on shutdown.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Database, func(context.Context) error, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5*time.Minute))
	if err != nil {
		return nil, nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(cfg.Database)
	if err := ensureIndexes(dialCtx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
	}
	return db, client.Disconnect, nil
}

// ensureIndexes creates the unique indexes the repositories rely on.
// CreateOne is idempotent for an identical existing index.
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(domain.Widget{}.CollectionName()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// CastError marks a request value that could not be converted to the type a
// document field requires (typically a malformed hex ObjectID in a URL). The
// error renderer recognizes it structurally and maps it to HTTP 400.
type CastError struct {
	// Path is the document field the value was destined for, e.g. "_id".
	Path string
	// Value is the raw input that failed to convert.
	Value string
	// Err is the underlying driver conversion error.
	Err error
}

// Error names the offending path and value; safe for client display.
func (e *CastError) Error() string {
	return fmt.Sprintf("Invalid %s: %s", e.Path, e.Value)
}

// Unwrap exposes the driver error to errors.Is/As.
func (e *CastError) Unwrap() error { return e.Err }

// ParseObjectID converts a hex string into an ObjectID, wrapping conversion
// failures in a *CastError attributed to path.
func ParseObjectID(path, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, &CastError{Path: path, Value: hex, Err: err}
	}
	return id, nil
}

// dupKeyIndexRe extracts the index name from a duplicate-key message, e.g.
// "... index: slug_1 dup key: { slug: \"alpha\" }" -> "slug".
var dupKeyIndexRe = regexp.MustCompile(`index: ([A-Za-z0-9_.]+?)_-?\d+ `)

// dupKeyFieldRe extracts field names from the dup key document, e.g.
// "dup key: { slug: \"alpha\" }" -> "slug".
var dupKeyFieldRe = regexp.MustCompile(`dup key: \{ ([A-Za-z0-9_.]+):`)

// IsDuplicateKey reports whether err is a MongoDB unique-index violation
// (server error code 11000 and friends).
func IsDuplicateKey(err error) bool {
	return err != nil && mongo.IsDuplicateKeyError(err)
}

// DuplicateKeyFields returns the names of the fields that violated a unique
// index, extracted from the server's write errors. The server does not expose
// the key pattern as structured data on every topology, so this falls back to
// parsing the error message; an empty slice means the violation was detected
// but the fields could not be named.
func DuplicateKeyFields(err error) []string {
	var msgs []string
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, w := range we.WriteErrors {
			msgs = append(msgs, w.Message)
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		msgs = append(msgs, ce.Message)
	}

	seen := make(map[string]struct{})
	var fields []string
	add := func(f string) {
		if f == "" {
			return
		}
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	for _, m := range msgs {
		if sub := dupKeyFieldRe.FindStringSubmatch(m); sub != nil {
			add(sub[1])
			continue
		}
		if sub := dupKeyIndexRe.FindStringSubmatch(m); sub != nil {
			add(sub[1])
		}
	}
	return fields
}
