package repo

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"eventpass/internal/model"
)

func mongoRepo(mt *mtest.T) *MongoRepository {
	log := zerolog.Nop()
	return &MongoRepository{events: mt.Coll, log: &log}
}

func countResponse(mt *mtest.T, n int32) bson.D {
	ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
	if n == 0 {
		return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
}

func newRegistration() *model.Registration {
	return &model.Registration{Name: "Ada", Email: "ada@x.com", Phone: "1234567890", Token: "tok-1"}
}

func TestMongo_AddRegistration(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("pushed", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1},
		))

		reg := newRegistration()
		require.NoError(mt, mongoRepo(mt).AddRegistration(context.Background(), "ev-1", reg))
		assert.NotEmpty(mt, reg.ID)
		assert.False(mt, reg.RegisteredAt.IsZero())
		assert.False(mt, reg.CheckedIn)
	})

	mt.Run("email taken", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countResponse(mt, 1),
		)
		err := mongoRepo(mt).AddRegistration(context.Background(), "ev-1", newRegistration())
		assert.ErrorIs(mt, err, ErrDuplicateRegistration)
	})

	mt.Run("unknown event", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countResponse(mt, 0),
		)
		err := mongoRepo(mt).AddRegistration(context.Background(), "missing", newRegistration())
		assert.ErrorIs(mt, err, ErrEventNotFound)
	})

	mt.Run("token taken", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: events index: registrations_token_key",
		}))
		err := mongoRepo(mt).AddRegistration(context.Background(), "ev-1", newRegistration())
		assert.ErrorIs(mt, err, ErrTokenConflict)
	})
}

func TestMongo_CheckIn(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 11, 2, 18, 45, 0, 0, time.UTC)

	mt.Run("admitted", func(mt *mtest.T) {
		event := bson.D{
			{Key: "_id", Value: "ev-1"},
			{Key: "name", Value: "Go Meetup"},
			{Key: "date", Value: "2026-11-02"},
			{Key: "time", Value: "18:30"},
			{Key: "venue", Value: "Hall A"},
			{Key: "registrations", Value: bson.A{
				bson.D{
					{Key: "id", Value: "r-1"},
					{Key: "name", Value: "Ada"},
					{Key: "email", Value: "ada@x.com"},
					{Key: "phone", Value: "1234567890"},
					{Key: "token", Value: "tok-1"},
					{Key: "checkedIn", Value: true},
					{Key: "checkedInAt", Value: at},
				},
			}},
		}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: event}))

		att, err := mongoRepo(mt).CheckIn(context.Background(), "tok-1", at)
		require.NoError(mt, err)
		assert.Equal(mt, "Ada", att.Name)
		assert.Equal(mt, "Go Meetup", att.EventName)
		assert.Equal(mt, "2026-11-02 18:30", att.EventDate)
		assert.True(mt, att.CheckedIn)
		require.NotNil(mt, att.CheckedInAt)
		assert.True(mt, at.Equal(*att.CheckedInAt))
	})

	mt.Run("already checked in", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			countResponse(mt, 1),
		)
		_, err := mongoRepo(mt).CheckIn(context.Background(), "tok-1", at)
		assert.ErrorIs(mt, err, ErrAlreadyCheckedIn)
	})

	mt.Run("unknown token", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			countResponse(mt, 0),
		)
		_, err := mongoRepo(mt).CheckIn(context.Background(), "nope", at)
		assert.ErrorIs(mt, err, ErrTokenNotFound)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))
		_, err := mongoRepo(mt).CheckIn(context.Background(), "tok-1", at)
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, ErrAlreadyCheckedIn)
		assert.NotErrorIs(mt, err, ErrTokenNotFound)
	})
}

func TestMongo_EventNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err := mongoRepo(mt).GetEventByID(context.Background(), "missing")
		assert.ErrorIs(mt, err, ErrEventNotFound)
	})

	mt.Run("delete", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		assert.ErrorIs(mt, mongoRepo(mt).DeleteEvent(context.Background(), "missing"), ErrEventNotFound)
	})

	mt.Run("update", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0},
		))
		err := mongoRepo(mt).UpdateEvent(context.Background(), &model.Event{ID: "missing"})
		assert.ErrorIs(mt, err, ErrEventNotFound)
	})
}
