package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Smart Pot topic.
const TopicPrefix = "smartpot"

// Topics builds Smart Pot topic names. Pots publish readings for a plant
// on smartpot/sensor/<plant id>/reading.
//
//	topic := mqtt.Topics{}.SensorAck("0b6f...")
//	// smartpot/sensor/0b6f.../ack
type Topics struct{}

// SensorAck is where the core answers a reading for one plant.
func (Topics) SensorAck(plantID string) string {
	return fmt.Sprintf("%s/sensor/%s/ack", TopicPrefix, plantID)
}

// SystemStatus carries the retained core presence message.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllSensorReadings matches readings for every plant.
//
// Pattern: smartpot/sensor/+/reading
func (Topics) AllSensorReadings() string {
	return TopicPrefix + "/sensor/+/reading"
}

// ParseSensorReadingTopic extracts the plant id from a concrete reading
// topic. It reports false for any other topic shape.
func ParseSensorReadingTopic(topic string) (plantID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "sensor" || parts[3] != "reading" {
		return "", false
	}
	if parts[2] == "" || parts[2] == "+" || parts[2] == "#" {
		return "", false
	}
	return parts[2], true
}
