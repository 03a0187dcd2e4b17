package exception

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Note is a free-form investigation entry attached to a case, kept outside
// Postgres since its shape varies by category (AI recommendation text,
// analyst commentary, attachments metadata).
type Note struct {
	CaseID    string    `bson:"case_id"`
	Author    string    `bson:"author"`
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"created_at"`
}

// NotesStore persists investigation notes in Mongo, separate from the
// structured case row (spec §4.12's ai_recommendation plus open-ended
// analyst notes).
type NotesStore interface {
	AppendNote(ctx context.Context, n Note) error
	Notes(ctx context.Context, caseID string) ([]Note, error)
}

// MongoNotesStore implements NotesStore against a single collection.
type MongoNotesStore struct {
	Collection *mongo.Collection
}

func (s *MongoNotesStore) AppendNote(ctx context.Context, n Note) error {
	if _, err := s.Collection.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert exception note: %w", err)
	}

	return nil
}

func (s *MongoNotesStore) Notes(ctx context.Context, caseID string) ([]Note, error) {
	cur, err := s.Collection.Find(ctx, bson.M{"case_id": caseID}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("find exception notes: %w", err)
	}
	defer cur.Close(ctx)

	var notes []Note
	if err := cur.All(ctx, &notes); err != nil {
		return nil, fmt.Errorf("decode exception notes: %w", err)
	}

	return notes, nil
}
