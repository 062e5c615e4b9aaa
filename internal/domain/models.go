// Package domain defines the persistence and queue models shared across the
// application. Widget is the sample resource the starter ships with; Job is
// the envelope for background work handed to the Redis queue.
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Widget statuses. A widget starts as a draft and becomes published once a
// publish job has been processed.
const (
	WidgetStatusDraft     = "draft"
	WidgetStatusPublished = "published"
)

// Widget is the sample document-store resource.
//
// Fields:
//   - ID: MongoDB ObjectID primary key.
//   - Name: human-readable display name.
//   - Slug: URL-safe identifier, unique across the collection (unique index
//     bootstrapped at connect time; violations surface as duplicate-key
//     write errors).
//   - Description: optional free text.
//   - Status: "draft" or "published".
//   - CreatedAt / UpdatedAt: timestamps maintained by the repository.
type Widget struct {
	ID          primitive.ObjectID `json:"id"          bson:"_id,omitempty"`
	Name        string             `json:"name"        bson:"name"`
	Slug        string             `json:"slug"        bson:"slug"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	Status      string             `json:"status"      bson:"status"`
	CreatedAt   time.Time          `json:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"  bson:"updated_at"`
}

// CollectionName returns the MongoDB collection name for Widget.
func (Widget) CollectionName() string { return "widgets" }

// Job types handled by the background queue worker.
const (
	JobTypePublishWidget = "widget.publish"
)

// Job is the JSON envelope pushed onto the Redis job queue. Payload carries
// job-type-specific string fields (kept flat so the envelope stays stable as
// job types are added).
type Job struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Payload    map[string]string `json:"payload,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}
