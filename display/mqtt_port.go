package display

import (
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/parking_controller/util"
)

// MQTTPort publishes the raw segment byte, retained, for a remote display.
type MQTTPort struct {
	client func() MQTT.Client
	topic  string
}

func NewMQTTPort(client func() MQTT.Client, topic string) *MQTTPort {
	return &MQTTPort{client: client, topic: topic}
}

// Write does not wait on the token; the dispatch loop must not stall on the broker.
func (p *MQTTPort) Write(pattern uint8) {
	client := p.client()
	if client == nil || !client.IsConnectionOpen() {
		util.Logger.Trace().Msgf("display port %s offline, dropping 0x%02X", p.topic, pattern)
		return
	}
	client.Publish(p.topic, 0, true, []byte{pattern})
}
