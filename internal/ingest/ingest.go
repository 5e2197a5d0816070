// Package ingest stores sensor readings that pots publish over MQTT.
//
// A reading published to smartpot/sensor/{plant_id}/reading goes through
// the same validation and unit of work as POST /plants/{plant_id}/sensordata,
// and the outcome is acknowledged on smartpot/sensor/{plant_id}/ack.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/garden"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smartpot-core/internal/metrics"
)

// handleTimeout bounds the database work for one message.
const handleTimeout = 5 * time.Second

// Rejection reasons, used as the metrics label.
const (
	reasonMalformed    = "malformed"
	reasonInvalid      = "invalid"
	reasonUnknownPlant = "unknown_plant"
	reasonStore        = "store_error"
)

// Bus is the part of the MQTT client the service uses.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Mirror receives every stored reading. Satisfied by *influxdb.Client.
type Mirror interface {
	WriteSensorReading(plantID string, moisture, light, temperature float64, ts time.Time)
}

// Deps holds the collaborators of a Service. Mirror, Recorder and Metrics
// are optional.
type Deps struct {
	DB       *database.DB
	Bus      Bus
	Mirror   Mirror
	Recorder *audit.Recorder
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	QoS      byte
}

// Service subscribes to reading topics and persists what arrives.
type Service struct {
	deps Deps
	ctx  context.Context
}

// New creates a Service. Call Start to subscribe.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{deps: deps, ctx: context.Background()}
}

// Start subscribes to every plant's reading topic. Database work for each
// message is derived from ctx, so cancelling it aborts in-flight inserts.
func (s *Service) Start(ctx context.Context) error {
	s.ctx = ctx
	topic := mqtt.Topics{}.AllSensorReadings()
	if err := s.deps.Bus.Subscribe(topic, s.deps.QoS, s.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	s.deps.Logger.Info("sensor ingest subscribed", "topic", topic)
	return nil
}

// Stop drops the reading subscription so no new messages are handled.
// Messages already being processed finish under the Start context.
func (s *Service) Stop() error {
	topic := mqtt.Topics{}.AllSensorReadings()
	if err := s.deps.Bus.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	s.deps.Logger.Info("sensor ingest unsubscribed", "topic", topic)
	return nil
}

// readingMessage is the payload a pot publishes. Pointers distinguish a
// missing field from a zero reading.
type readingMessage struct {
	Moisture    *float64   `json:"moisture"`
	Light       *float64   `json:"light"`
	Temperature *float64   `json:"temperature"`
	Timestamp   *time.Time `json:"timestamp"`
}

type ackMessage struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleMessage processes one inbound reading. It is the MQTT handler
// registered by Start and returns the rejection error, if any, for logging.
func (s *Service) HandleMessage(topic string, payload []byte) error {
	plantID, ok := mqtt.ParseSensorReadingTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	reading, err := decodeReading(plantID, payload)
	if err != nil {
		return s.reject(plantID, reasonMalformed, err)
	}
	if err := garden.ValidateReading(reading); err != nil {
		return s.reject(plantID, reasonInvalid, err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, handleTimeout)
	defer cancel()

	var owner string
	err = s.deps.DB.WithTx(ctx, func(tx database.DBTX) error {
		repo := garden.NewSQLiteRepository(tx)
		var err error
		if owner, err = repo.PlantOwner(ctx, plantID); err != nil {
			return err
		}
		return repo.AddReading(ctx, reading)
	})
	if err != nil {
		if errors.Is(err, garden.ErrPlantNotFound) {
			return s.reject(plantID, reasonUnknownPlant, err)
		}
		s.deps.Logger.Error("storing mqtt reading failed", "plant_id", plantID, "error", err)
		return s.reject(plantID, reasonStore, errors.New("internal error"))
	}

	if s.deps.Mirror != nil {
		s.deps.Mirror.WriteSensorReading(plantID, reading.Moisture, reading.Light, reading.Temperature, reading.Timestamp)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ReadingsIngested.WithLabelValues(audit.SourceMQTT).Inc()
	}
	s.deps.Recorder.Record(&audit.AuditLog{
		Action:     audit.ActionCreate,
		EntityType: "sensor_reading",
		EntityID:   reading.ID,
		UserID:     owner,
		Source:     audit.SourceMQTT,
		Details:    map[string]any{"plant_id": plantID},
	})

	s.ack(plantID, ackMessage{Status: "accepted", ID: reading.ID})
	return nil
}

func decodeReading(plantID string, payload []byte) (*garden.SensorReading, error) {
	var msg readingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	switch {
	case msg.Moisture == nil:
		return nil, errors.New("moisture is required")
	case msg.Light == nil:
		return nil, errors.New("light is required")
	case msg.Temperature == nil:
		return nil, errors.New("temperature is required")
	}

	r := &garden.SensorReading{
		PlantID:     plantID,
		Moisture:    *msg.Moisture,
		Light:       *msg.Light,
		Temperature: *msg.Temperature,
	}
	if msg.Timestamp != nil {
		r.Timestamp = *msg.Timestamp
	}
	return r, nil
}

func (s *Service) reject(plantID, reason string, err error) error {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ReadingsRejected.WithLabelValues(audit.SourceMQTT, reason).Inc()
	}
	s.ack(plantID, ackMessage{Status: "rejected", Error: err.Error()})
	return fmt.Errorf("rejected reading for plant %s (%s): %w", plantID, reason, err)
}

func (s *Service) ack(plantID string, msg ackMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.deps.Logger.Error("encoding ack failed", "error", err)
		return
	}
	if err := s.deps.Bus.Publish(mqtt.Topics{}.SensorAck(plantID), payload, s.deps.QoS, false); err != nil {
		s.deps.Logger.Warn("publishing ack failed", "plant_id", plantID, "error", err)
	}
}
