// Package mqtt connects Smart Pot Core to an MQTT broker so pots can push
// sensor readings without going through the HTTP API.
//
// The client wraps paho.mqtt.golang and adds:
//   - auto-reconnect with subscriptions restored after each reconnect
//   - a retained online/offline status on smartpot/system/status, with the
//     offline message also registered as the Last Will
//   - panic recovery around message handlers
//
// Topic layout:
//
//	smartpot/sensor/{plant_id}/reading   pot → core, one SensorReading
//	smartpot/sensor/{plant_id}/ack       core → pot, accepted/rejected
//	smartpot/system/status               core presence (retained)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        plantID, ok := mqtt.ParseSensorReadingTopic(topic)
//	        ...
//	    })
//
// MQTT is disabled unless mqtt.enabled is set; the HTTP API never depends on it.
package mqtt
