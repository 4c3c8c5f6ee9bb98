package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"zarp/internal/app/session"
	"zarp/internal/domain/availability"
	"zarp/internal/domain/daterange"
	"zarp/internal/infra/obs"
)

// DefaultTopic is the shared confirmed-reservations topic. The backend
// does not partition by property, so property filtering happens on the
// consuming side.
const DefaultTopic = "reservations.confirmed"

// reservationPayload is the backend's event shape, identical to the
// snapshot rows plus routing fields.
type reservationPayload struct {
	EventID     string `json:"eventId"`
	PropiedadID string `json:"propiedadId"`
	FechaInicio string `json:"fechaInicio"`
	FechaFin    string `json:"fechaFin"`
}

// Factory opens one consumer group per viewing session so every session
// observes the full event stream for its property.
type Factory struct {
	brokers     []string
	topic       string
	groupPrefix string
	retryDelay  time.Duration
	logger      *slog.Logger
}

func NewFactory(brokers []string, topicPrefix, groupPrefix string, retryDelay time.Duration, logger *slog.Logger) *Factory {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		brokers:     brokers,
		topic:       topicPrefix + DefaultTopic,
		groupPrefix: groupPrefix,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// Open starts the consume loop for one property. The loop lives until
// Close: transport failures mark the sink disconnected and are retried
// with a fixed delay, never surfaced as fatal.
func (f *Factory) Open(ctx context.Context, propertyID availability.PropertyID, sink session.EventSink) (session.LiveChannel, error) {
	if len(f.brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	ch := &Channel{cancel: cancel, done: make(chan struct{})}
	groupID := fmt.Sprintf("%s-%s", f.groupPrefix, uuid.NewString())
	go f.run(loopCtx, ch, groupID, propertyID, sink)
	return ch, nil
}

func (f *Factory) run(ctx context.Context, ch *Channel, groupID string, propertyID availability.PropertyID, sink session.EventSink) {
	defer close(ch.done)
	defer sink.SetLiveConnected(false)

	handler := groupHandler{propertyID: propertyID, sink: sink, logger: f.logger}
	for {
		if ctx.Err() != nil {
			return
		}
		cfg := sarama.NewConfig()
		cfg.Version = sarama.V2_5_0_0
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

		group, err := sarama.NewConsumerGroup(f.brokers, groupID, cfg)
		if err != nil {
			f.logger.Warn("live channel connect failed", "property_id", propertyID, "error", err)
			if !f.retry(ctx) {
				return
			}
			continue
		}

		sink.SetLiveConnected(true)
		for {
			// Consume returns nil on rebalance; only a real error tears
			// the group down.
			if err := group.Consume(ctx, []string{f.topic}, handler); err != nil {
				f.logger.Warn("live channel consume failed", "property_id", propertyID, "error", err)
				break
			}
			if ctx.Err() != nil {
				_ = group.Close()
				return
			}
		}
		sink.SetLiveConnected(false)
		_ = group.Close()
		if !f.retry(ctx) {
			return
		}
	}
}

// retry counts a reconnect attempt and waits out the delay. A cancelled
// context is a teardown, not a reconnect, and must not touch the counter.
func (f *Factory) retry(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	obs.IncLiveReconnect()
	select {
	case <-ctx.Done():
		return false
	case <-time.After(f.retryDelay):
		return true
	}
}

// Channel is one open subscription; Close stops the consume loop and
// waits for it to release the group.
type Channel struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *Channel) Close() error {
	c.cancel()
	<-c.done
	return nil
}

type groupHandler struct {
	propertyID availability.PropertyID
	sink       session.EventSink
	logger     *slog.Logger
}

func (h groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		ev, err := DecodeEvent(message.Value)
		if err != nil {
			// One bad payload must not stall or kill the stream.
			h.logger.Warn("malformed reservation event dropped",
				"topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
			obs.IncLiveEventDropped("malformed")
			sess.MarkMessage(message, "")
			continue
		}
		if ev.PropertyID != h.propertyID {
			obs.IncLiveEventDropped("property_mismatch")
			sess.MarkMessage(message, "")
			continue
		}
		h.sink.Deliver(sess.Context(), ev)
		sess.MarkMessage(message, "")
	}
	return nil
}

// DecodeEvent parses one reservation event payload into the engine's
// normalized form.
func DecodeEvent(raw []byte) (session.ReservationEvent, error) {
	var payload reservationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return session.ReservationEvent{}, fmt.Errorf("kafka: decode event: %w", err)
	}
	if payload.PropiedadID == "" {
		return session.ReservationEvent{}, fmt.Errorf("kafka: event missing propiedadId")
	}
	start, err := daterange.ParseDay(payload.FechaInicio)
	if err != nil {
		return session.ReservationEvent{}, fmt.Errorf("kafka: fechaInicio: %w", err)
	}
	end, err := daterange.ParseDay(payload.FechaFin)
	if err != nil {
		return session.ReservationEvent{}, fmt.Errorf("kafka: fechaFin: %w", err)
	}
	iv, err := daterange.NewInterval(start, end)
	if err != nil {
		return session.ReservationEvent{}, fmt.Errorf("kafka: %w", err)
	}
	return session.ReservationEvent{
		EventID:    payload.EventID,
		PropertyID: availability.PropertyID(payload.PropiedadID),
		Interval:   iv,
	}, nil
}

var _ session.LiveChannelFactory = (*Factory)(nil)
