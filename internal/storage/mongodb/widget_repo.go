// Package mongodb implements the document persistence layer on the official
// MongoDB driver. This file provides repository functions for the Widget
// collection.
//
// All functions are context-aware and accept a *mongo.Database handle. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a widget is not found, functions return ErrNotFound (an alias of
//     mongo.ErrNoDocuments).
//   - Unique-index violations propagate as the driver's duplicate-key write
//     errors; use IsDuplicateKey / DuplicateKeyFields to classify them.
//   - Malformed IDs never reach this layer; callers convert hex input with
//     ParseObjectID first.
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvasilakos/go-api-starter/internal/domain"
)

// ErrNotFound is returned when a requested document does not exist. It
// aliases mongo.ErrNoDocuments for convenience and consistency across the
// service layer and handlers.
var ErrNotFound = mongo.ErrNoDocuments

// widgets returns the Widget collection handle.
func widgets(db *mongo.Database) *mongo.Collection {
	return db.Collection(domain.Widget{}.CollectionName())
}

// CreateWidget inserts a new draft widget and returns the persisted document.
// A duplicate slug surfaces as the driver's duplicate-key write error.
func CreateWidget(ctx context.Context, db *mongo.Database, name, slug, description string) (*domain.Widget, error) {
	now := time.Now().UTC()
	w := domain.Widget{
		ID:          primitive.NewObjectID(),
		Name:        name,
		Slug:        slug,
		Description: description,
		Status:      domain.WidgetStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := widgets(db).InsertOne(ctx, w); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWidget fetches a single widget by ID, or ErrNotFound if missing.
func GetWidget(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (*domain.Widget, error) {
	var w domain.Widget
	err := widgets(db).FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CountWidgets returns the total number of widgets in the collection.
func CountWidgets(ctx context.Context, db *mongo.Database) (int64, error) {
	return widgets(db).CountDocuments(ctx, bson.M{})
}

// ListWidgetsPage returns a page of widgets ordered by creation time
// descending.
func ListWidgetsPage(ctx context.Context, db *mongo.Database, offset, limit int) ([]domain.Widget, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := widgets(db).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]domain.Widget, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateWidget overwrites the mutable fields of a widget and bumps
// UpdatedAt. Returns ErrNotFound when no document matches.
func UpdateWidget(ctx context.Context, db *mongo.Database, id primitive.ObjectID, name, description string) (*domain.Widget, error) {
	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	update := bson.M{"$set": bson.M{
		"name":        name,
		"description": description,
		"updated_at":  time.Now().UTC(),
	}}
	var w domain.Widget
	if err := widgets(db).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// SetWidgetStatus transitions a widget to the given status. Returns
// ErrNotFound when no document matches.
func SetWidgetStatus(ctx context.Context, db *mongo.Database, id primitive.ObjectID, status string) error {
	res, err := widgets(db).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWidget removes a widget. Returns ErrNotFound when no document
// matches.
func DeleteWidget(ctx context.Context, db *mongo.Database, id primitive.ObjectID) error {
	res, err := widgets(db).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
