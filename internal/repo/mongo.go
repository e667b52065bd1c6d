package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventpass/internal/model"
)

const eventsCollection = "events"

// MongoRepository stores each event as one document with its registrations
// embedded, so every registration write is a single-document atomic update.
type MongoRepository struct {
	events *mongo.Collection
	log    *zerolog.Logger
}

func NewMongoRepository(ctx context.Context, db *mongo.Database, log *zerolog.Logger) (*MongoRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database cannot be nil")
	}
	r := &MongoRepository{events: db.Collection(eventsCollection), log: log}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	log.Info().Str("collection", eventsCollection).Msg("mongo repository ready")
	return r, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "registrations.token", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"registrations.token": bson.M{"$exists": true}}).
				SetName("registrations_token_key"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("events_created_at_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// MigrateUp only makes sure indexes exist; the collection has no schema.
func (r *MongoRepository) MigrateUp(string) error {
	return r.ensureIndexes(context.Background())
}

func (r *MongoRepository) MigrateDown(string) error {
	if _, err := r.events.Indexes().DropAll(context.Background()); err != nil {
		return fmt.Errorf("failed to drop indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Registrations == nil {
		e.Registrations = []model.Registration{}
	}
	if _, err := r.events.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.events.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	normalize(&e)
	return &e, nil
}

func (r *MongoRepository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	cur, err := r.events.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	events := []model.Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	for i := range events {
		normalize(&events[i])
	}
	return events, nil
}

func (r *MongoRepository) ListEventSummaries(ctx context.Context) ([]model.EventSummary, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "name": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := []model.EventSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode event summaries: %w", err)
	}
	return out, nil
}

// UpdateEvent touches only the event's own fields; registrations are never
// rewritten here.
func (r *MongoRepository) UpdateEvent(ctx context.Context, e *model.Event) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := r.events.UpdateOne(ctx, bson.M{"_id": e.ID}, bson.M{"$set": bson.M{
		"name":      e.Name,
		"date":      e.Date,
		"time":      e.Time,
		"venue":     e.Venue,
		"image":     e.Image,
		"updatedAt": e.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.events.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

// AddRegistration pushes only when no embedded registration has the email,
// which makes the duplicate check and the append one atomic step.
func (r *MongoRepository) AddRegistration(ctx context.Context, eventID string, reg *model.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.RegisteredAt.IsZero() {
		reg.RegisteredAt = time.Now().UTC()
	}
	reg.CheckedIn = false
	reg.CheckedInAt = nil

	filter := bson.M{"_id": eventID, "registrations.email": bson.M{"$ne": reg.Email}}
	res, err := r.events.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"registrations": reg}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrTokenConflict
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.events.CountDocuments(ctx, bson.M{"_id": eventID})
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return ErrDuplicateRegistration
}

func (r *MongoRepository) HasRegistration(ctx context.Context, eventID, email string) (bool, error) {
	n, err := r.events.CountDocuments(ctx, bson.M{"_id": eventID, "registrations.email": email})
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return n > 0, nil
}

func (r *MongoRepository) FindEventByToken(ctx context.Context, token string) (*model.Event, error) {
	var e model.Event
	err := r.events.FindOne(ctx, bson.M{"registrations.token": token}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find registration by token: %w", err)
	}
	normalize(&e)
	return &e, nil
}

// CheckIn matches the array element on both token and checkedIn=false and sets
// it through the positional operator in the same update.
func (r *MongoRepository) CheckIn(ctx context.Context, token string, at time.Time) (*model.Attendee, error) {
	at = at.UTC()
	filter := bson.M{"registrations": bson.M{"$elemMatch": bson.M{"token": token, "checkedIn": false}}}
	update := bson.M{"$set": bson.M{
		"registrations.$.checkedIn":   true,
		"registrations.$.checkedInAt": at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var e model.Event
	err := r.events.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e)
	if err == nil {
		reg := e.FindRegistration(token)
		if reg == nil {
			return nil, fmt.Errorf("checked-in registration missing from event %s", e.ID)
		}
		return model.NewAttendee(&e, reg), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to check in: %w", err)
	}

	n, err := r.events.CountDocuments(ctx, bson.M{"registrations.token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to read registration state: %w", err)
	}
	if n == 0 {
		return nil, ErrTokenNotFound
	}
	return nil, ErrAlreadyCheckedIn
}

func normalize(e *model.Event) {
	if e.Registrations == nil {
		e.Registrations = []model.Registration{}
	}
}
