package main

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestBuildDataBounds(t *testing.T) {
	if _, err := buildData(0, 0x10, "", "", "hold", false); err == nil {
		t.Error("zero slots should be rejected")
	}
	if _, err := buildData(10, 0x10, "", "", "hold", false); err == nil {
		t.Error("ten slots should be rejected")
	}
	if _, err := buildData(3, 0x7E, "", "", "hold", false); err == nil {
		t.Error("addresses past 0x7F should be rejected")
	}
}

func TestRenderReadsBack(t *testing.T) {
	data, err := buildData(4, 0x20, "tcp://broker:1883", "garage", "vacant", true)
	if err != nil {
		t.Fatalf("buildData() error: %v", err)
	}

	var out strings.Builder
	if err := render(&out, data); err != nil {
		t.Fatalf("render() error: %v", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(out.String())); err != nil {
		t.Fatalf("generated config is not valid yaml: %v\n%s", err, out.String())
	}

	var slots []Slot
	if err := v.UnmarshalKey("slots", &slots); err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 4 || slots[0].Name != "bay1" || slots[3].Address != 0x23 {
		t.Errorf("slots = %+v", slots)
	}
	if v.GetString("topic_prefix") != "garage" || v.GetString("sensor_failure_policy") != "vacant" {
		t.Errorf("prefix/policy = %s/%s", v.GetString("topic_prefix"), v.GetString("sensor_failure_policy"))
	}
	if v.GetDuration("bus_timeout") >= v.GetDuration("tick_period") {
		t.Error("bus_timeout should be below tick_period")
	}
	if !v.GetBool("simulate") {
		t.Error("simulate should be true")
	}
}
