package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/parking_controller/display"
	"github.com/elijahnyp/parking_controller/mqttmock"
	"github.com/elijahnyp/parking_controller/sensor"
	"github.com/elijahnyp/parking_controller/state"
	. "github.com/elijahnyp/parking_controller/util"
	"github.com/gorilla/websocket"
)

func testSettings() LotSettings {
	return LotSettings{
		Slots: []SlotSettings{
			{Name: "bay1", Address: 0x1A},
			{Name: "bay2", Address: 0x1B},
			{Name: "bay3", Address: 0x1C},
		},
		TopicPrefix:   "parking",
		TickPeriod:    25 * time.Millisecond,
		BusTimeout:    20 * time.Millisecond,
		BlinkInterval: 20,
		BlinkCount:    5,
		FailurePolicy: "hold",
	}
}

func newTestController(t *testing.T) (*controller, *sensor.SimLink) {
	t.Helper()
	Config.Set("topic_prefix", "parking")
	sim := sensor.NewSimLink(0x1A, 0x1B, 0x1C)
	ctrl, err := newController(testSettings(), sim, nil)
	if err != nil {
		t.Fatalf("newController returned error: %v", err)
	}
	sim.OnChange(ctrl.signalAddr)
	return ctrl, sim
}

func TestNewControllerRejectsUnknownPolicy(t *testing.T) {
	settings := testSettings()
	settings.FailurePolicy = "guess"
	if _, err := newController(settings, sensor.NewSimLink(), nil); err == nil {
		t.Error("newController should reject an unknown failure policy")
	}
}

func TestSignalAddrMarksSlot(t *testing.T) {
	ctrl, sim := newTestController(t)

	sim.SetPresent(0x1B, true)
	ctrl.signalAddr(0x55)

	if mask := ctrl.flags.TakePending(); mask != 0b010 {
		t.Errorf("pending mask = %b, expected 010", mask)
	}
}

func TestAPIStatus(t *testing.T) {
	ctrl, sim := newTestController(t)
	sim.SetPresent(0x1A, true)
	ctrl.dispatcher.Init(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	ctrl.APIStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, expected 200", rec.Code)
	}
	var body struct {
		Slots          []state.SlotStatus `json:"slots"`
		Available      int                `json:"available"`
		Total          int                `json:"total"`
		DisplayPattern uint8              `json:"display_pattern"`
		DisplayLit     bool               `json:"display_lit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Available != 2 || body.Total != 3 || len(body.Slots) != 3 {
		t.Errorf("body = %+v, expected 2 of 3 available", body)
	}
	if body.DisplayPattern != 0x5B || !body.DisplayLit {
		t.Errorf("display = 0x%02X lit=%v, expected 0x5B lit", body.DisplayPattern, body.DisplayLit)
	}

	rec = httptest.NewRecorder()
	ctrl.APIStatus(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status code = %d, expected 405", rec.Code)
	}
}

func TestAPIRequestOnlyRaisesFlag(t *testing.T) {
	ctrl, sim := newTestController(t)
	ctrl.dispatcher.Init(context.Background())

	rec := httptest.NewRecorder()
	ctrl.APIRequest(rec, httptest.NewRequest(http.MethodPost, "/api/request", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("first request code = %d, expected 202", rec.Code)
	}
	if sim.Attention(0x1A) {
		t.Error("handler must not talk to the bus")
	}

	rec = httptest.NewRecorder()
	ctrl.APIRequest(rec, httptest.NewRequest(http.MethodPost, "/api/request", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second request code = %d, expected 409", rec.Code)
	}

	ctrl.dispatcher.Cycle(context.Background())
	if !sim.Attention(0x1A) {
		t.Error("the next cycle should light slot 0")
	}

	rec = httptest.NewRecorder()
	ctrl.APIRequest(rec, httptest.NewRequest(http.MethodGet, "/api/request", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET code = %d, expected 405", rec.Code)
	}
}

func TestDisplayImage(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.dispatcher.Init(context.Background())

	rec := httptest.NewRecorder()
	ctrl.DisplayImage(rec, httptest.NewRequest(http.MethodGet, "/display.png", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s, expected image/png", ct)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("response is not a PNG: %v", err)
	}
}

func TestHomeHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HomeHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/display.png") {
		t.Errorf("home page code %d, body missing display image", rec.Code)
	}

	rec = httptest.NewRecorder()
	HomeHandler(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path code = %d, expected 404", rec.Code)
	}
}

func TestRoutesAndMetrics(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.dispatcher.Init(context.Background())
	monitor := NewMonitorServer(0)
	ctrl.routes(monitor)

	srv := httptest.NewServer(monitor.Handler())
	defer srv.Close()

	for _, path := range []string{"/", "/api/status", "/display.png", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, expected 200", path, resp.StatusCode)
		}
	}
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	ctrl, sim := newTestController(t)
	go ctrl.hub.Run()
	ctrl.dispatcher.Init(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(ctrl.ServeWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() state.Snapshot {
		t.Helper()
		var msg struct {
			Type string         `json:"type"`
			Data state.Snapshot `json:"data"`
		}
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("deadline: %v", err)
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != "lot_status" {
			t.Errorf("message type = %s, expected lot_status", msg.Type)
		}
		return msg.Data
	}

	first := read()
	if first.Available != 3 {
		t.Errorf("initial snapshot available = %d, expected 3", first.Available)
	}

	sim.SetPresent(0x1C, true)
	ctrl.dispatcher.Cycle(context.Background())

	// the Init broadcast may still be queued ahead of the change
	last := first
	for i := 0; i < 3; i++ {
		snap := read()
		if snap.UpdatedAt.Before(last.UpdatedAt) {
			t.Fatalf("snapshot from %v arrived after one from %v", snap.UpdatedAt, last.UpdatedAt)
		}
		last = snap
		if snap.Available == 2 {
			break
		}
	}
	if last.Available != 2 || !last.Slots[2].Occupied {
		t.Errorf("pushed snapshot = %+v, expected slot 2 taken", last)
	}
}

func TestHubGreetsLateClientWithLatestOnly(t *testing.T) {
	hub := NewHub()
	hub.latest = &WebSocketMessage{Type: "lot_status", Data: "v1"}
	go hub.Run()

	early := &WSClient{send: make(chan WebSocketMessage, 8), hub: hub}
	hub.register <- early
	if msg := <-early.send; msg.Data != "v1" {
		t.Fatalf("first client greeted with %v, expected v1", msg.Data)
	}

	hub.BroadcastUpdate("lot_status", "v2")
	if msg := <-early.send; msg.Data != "v2" {
		t.Fatalf("broadcast = %v, expected v2", msg.Data)
	}

	late := &WSClient{send: make(chan WebSocketMessage, 8), hub: hub}
	hub.register <- late
	if msg := <-late.send; msg.Data != "v2" {
		t.Errorf("late client greeted with %v, expected v2", msg.Data)
	}
	select {
	case msg := <-late.send:
		t.Errorf("late client got an extra message %v", msg.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMQTTReporter(t *testing.T) {
	Config.Set("topic_prefix", "parking")
	client := mqttmock.NewClient()
	r := mqttReporter{client: func() MQTT.Client { return client }}

	r.Publish(&state.Snapshot{
		Available: 1,
		Total:     3,
		Occupied:  2,
		Slots: []state.SlotStatus{
			{Name: "bay1", Occupied: true},
			{Name: "bay2", Occupied: false},
			{Name: "bay3", Occupied: true},
		},
	})

	if calls := client.PublishesTo("parking/available"); len(calls) != 1 || calls[0].Payload != "1" || !calls[0].Retained {
		t.Errorf("available publishes = %+v", calls)
	}
	if calls := client.PublishesTo("parking/slot/bay2/occupied"); len(calls) != 1 || calls[0].Payload != "false" {
		t.Errorf("bay2 publishes = %+v", calls)
	}
	if calls := client.PublishesTo("parking/state"); len(calls) != 1 {
		t.Errorf("expected a state document, got %d", len(calls))
	}

	offline := mqttReporter{client: func() MQTT.Client { return nil }}
	offline.Publish(&state.Snapshot{})
}

func TestButtonHandler(t *testing.T) {
	ctrl, _ := newTestController(t)
	client := mqttmock.NewClient()
	client.Subscribe("parking/button", 0, ctrl.buttonHandler)

	client.Deliver("parking/button", []byte("pressed"))
	client.Deliver("parking/button", []byte("pressed"))

	if !ctrl.flags.TakeRequest() {
		t.Error("button should raise the request flag")
	}
	if ctrl.flags.TakeRequest() {
		t.Error("second press while pending should have been dropped")
	}
}

func TestControllerDrivesDisplayPorts(t *testing.T) {
	Config.Set("topic_prefix", "parking")
	client := mqttmock.NewClient()
	port := display.NewMQTTPort(func() MQTT.Client { return client }, Topic("display", "segments"))
	ctrl, err := newController(testSettings(), sensor.NewSimLink(0x1A, 0x1B, 0x1C), []display.Port{port})
	if err != nil {
		t.Fatalf("newController returned error: %v", err)
	}
	ctrl.dispatcher.Init(context.Background())

	calls := client.PublishesTo("parking/display/segments")
	if len(calls) != 1 {
		t.Fatalf("expected 1 segment publish, got %d", len(calls))
	}
	if payload, _ := calls[0].Payload.([]byte); len(payload) != 1 || payload[0] != 0x4F {
		t.Errorf("segment payload = %v, expected [0x4F]", calls[0].Payload)
	}
	if ctrl.mirror.Pattern() != 0x4F {
		t.Errorf("mirror pattern = 0x%02X, expected 0x4F", ctrl.mirror.Pattern())
	}
}
