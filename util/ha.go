package util

import (
	"encoding/json"
	"fmt"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

const haDeviceID = "parking_controller"

type HAAvailability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

type HADeviceSpec struct {
	Name        string   `json:"name"`
	Identifiers []string `json:"ids"`
}

type HAAdvertisement struct { //nolint:govet // struct layout optimized for JSON field order
	Availability      []HAAvailability `json:"availability"`
	Device            HADeviceSpec     `json:"device"`
	UniqueID          string           `json:"uniq_id"`
	Name              string           `json:"name"`
	StateTopic        string           `json:"state_topic"`
	PayloadOn         string           `json:"payload_on,omitempty"`
	PayloadOff        string           `json:"payload_off,omitempty"`
	DeviceClass       string           `json:"device_class,omitempty"`
	UnitOfMeasurement string           `json:"unit_of_measurement,omitempty"`
	Platform          string           `json:"platform"`
	Qos               int              `json:"qos"`
}

func (ha HAAdvertisement) ToJson() string {
	data, err := json.Marshal(ha)
	if err != nil {
		Logger.Error().Msgf("Error marshalling HAAdvertisement: %v", err)
		return ""
	}
	return string(data)
}

func haBase(name, stateTopic string) HAAdvertisement {
	return HAAdvertisement{
		Name:       name,
		StateTopic: stateTopic,
		Availability: []HAAvailability{
			{
				Topic:               OnlineTopic(),
				PayloadAvailable:    "online",
				PayloadNotAvailable: "offline",
			},
		},
		Qos: 0,
		Device: HADeviceSpec{
			Name:        haDeviceID,
			Identifiers: []string{haDeviceID},
		},
	}
}

// SlotStateTopic is where the occupied flag of one slot is published.
func SlotStateTopic(slot string) string {
	return Topic("slot", slot, "occupied")
}

func AvailableTopic() string {
	return Topic("available")
}

func ConstructSlotAdvertisement(slot string) HAAdvertisement {
	ha := haBase(slot, SlotStateTopic(slot))
	ha.PayloadOn = "true"
	ha.PayloadOff = "false"
	ha.UniqueID = "parking_slot-" + slot
	ha.DeviceClass = "occupancy"
	ha.Platform = "binary_sensor"
	return ha
}

func ConstructAvailableAdvertisement() HAAdvertisement {
	ha := haBase("available_slots", AvailableTopic())
	ha.UniqueID = "parking_available"
	ha.UnitOfMeasurement = "slots"
	ha.Platform = "sensor"
	return ha
}

// AdvertiseHA publishes Home Assistant discovery documents for every slot and
// for the available-slot counter.
func AdvertiseHA(slots []SlotSettings, client MQTT.Client) error {
	publish := func(topic string, ha HAAdvertisement) error {
		if token := client.Publish(topic, 0, true, ha.ToJson()); token.Wait() && token.Error() != nil {
			return fmt.Errorf("publishing %s: %w", topic, token.Error())
		}
		return nil
	}
	for _, slot := range slots {
		if err := publish("homeassistant/binary_sensor/"+haDeviceID+"/"+slot.Name+"/config", ConstructSlotAdvertisement(slot.Name)); err != nil {
			return err
		}
	}
	return publish("homeassistant/sensor/"+haDeviceID+"/available/config", ConstructAvailableAdvertisement())
}
