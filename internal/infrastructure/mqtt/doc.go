// Package mqtt connects the MELCloud bridge to an MQTT broker.
//
// The client wraps paho.mqtt.golang and adds:
//   - automatic reconnection with subscriptions restored on every connect
//   - retained online/offline status on the bridge health topic, with a
//     Last Will so consumers notice an unexpected disconnect
//   - panic recovery around message handlers
//
// All topics live under a configurable prefix (default "melcloud"). Use
// Topics to build them rather than formatting strings by hand:
//
//	topics := mqtt.NewTopics(cfg.Bridge.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.RequestWildcard(), 1, handleRequest)
//
// Handlers run on paho's goroutines and should not block.
package mqtt
