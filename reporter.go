package main

import (
	"encoding/json"
	"strconv"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/parking_controller/state"
	. "github.com/elijahnyp/parking_controller/util"
)

// mqttReporter mirrors the lot onto retained topics for Home Assistant and
// anything else on the broker. Tokens are not waited on.
type mqttReporter struct {
	client func() MQTT.Client
}

func (r mqttReporter) Publish(snap *state.Snapshot) {
	client := r.client()
	if client == nil || !client.IsConnectionOpen() {
		return
	}
	client.Publish(AvailableTopic(), 0, true, strconv.Itoa(snap.Available))
	for _, slot := range snap.Slots {
		client.Publish(SlotStateTopic(slot.Name), 0, true, strconv.FormatBool(slot.Occupied))
	}
	data, err := json.Marshal(snap)
	if err != nil {
		Logger.Error().Msgf("Error marshaling snapshot: %v", err)
		return
	}
	client.Publish(Topic("state"), 0, true, data)
}

// buttonHandler is the MQTT edge for the user button. It only raises the flag.
func (c *controller) buttonHandler(client MQTT.Client, message MQTT.Message) {
	c.flags.SignalRequest()
}
