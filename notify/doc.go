// Package notify publishes bluebox configuration changes to an MQTT
// broker as JSON messages.
package notify
