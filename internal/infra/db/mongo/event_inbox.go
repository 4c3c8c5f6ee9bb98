package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"zarp/internal/app/session"
)

// EventInbox records applied reservation event ids so replays after a
// reconnect are recognized across restarts. The unique index makes
// insert-then-check atomic; the TTL index keeps the collection from
// growing without bound, since the merge itself stays idempotent anyway.
type EventInbox struct {
	col      *mongo.Collection
	consumer string
}

func NewEventInbox(db *mongo.Database, consumer string) *EventInbox {
	col := db.Collection("availability_inbox")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	ttl := time.Hour * 24 * 30
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "received_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
	})
	return &EventInbox{col: col, consumer: consumer}
}

func (s *EventInbox) Seen(ctx context.Context, eventID string) (bool, error) {
	doc := bson.M{"event_id": eventID, "consumer": s.consumer, "received_at": time.Now().UTC()}
	_, err := s.col.InsertOne(ctx, doc)
	if err == nil {
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}

var _ session.Inbox = (*EventInbox)(nil)
