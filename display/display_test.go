package display

import (
	"bytes"
	"image/png"
	"testing"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/parking_controller/mqttmock"
)

type recordingPort struct {
	writes []uint8
}

func (p *recordingPort) Write(pattern uint8) {
	p.writes = append(p.writes, pattern)
}

func TestPatternTable(t *testing.T) {
	tests := []struct {
		symbol  uint8
		pattern uint8
		ok      bool
	}{
		{0, 0x3F, true},
		{1, 0x06, true},
		{2, 0x5B, true},
		{3, 0x4F, true},
		{9, 0x6F, true},
		{10, ErrorPattern, false},
		{255, ErrorPattern, false},
	}
	for _, tt := range tests {
		pattern, ok := Pattern(tt.symbol)
		if pattern != tt.pattern || ok != tt.ok {
			t.Errorf("Pattern(%d) = 0x%02X, %v, expected 0x%02X, %v", tt.symbol, pattern, ok, tt.pattern, tt.ok)
		}
	}
}

func TestSegmentDisplayRenderAndBlank(t *testing.T) {
	a := &recordingPort{}
	b := &recordingPort{}
	d := NewSegmentDisplay(a, b)

	d.Render(3)
	pattern, symbol, lit := d.State()
	if pattern != 0x4F || symbol != 3 || !lit {
		t.Errorf("State() after Render(3) = 0x%02X, %d, %v", pattern, symbol, lit)
	}

	d.Blank()
	pattern, symbol, lit = d.State()
	if pattern != 0 || lit {
		t.Errorf("State() after Blank() = 0x%02X, lit %v, expected dark", pattern, lit)
	}
	if symbol != 3 {
		t.Errorf("Blank() should keep the last symbol, got %d", symbol)
	}

	for name, port := range map[string]*recordingPort{"a": a, "b": b} {
		if len(port.writes) != 2 || port.writes[0] != 0x4F || port.writes[1] != 0 {
			t.Errorf("port %s writes = %v, expected [0x4F 0]", name, port.writes)
		}
	}
}

func TestMQTTPort(t *testing.T) {
	client := mqttmock.NewClient()
	port := NewMQTTPort(func() MQTT.Client { return client }, "parking/display/segments")

	port.Write(0x5B)
	calls := client.PublishesTo("parking/display/segments")
	if len(calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(calls))
	}
	payload, ok := calls[0].Payload.([]byte)
	if !ok || len(payload) != 1 || payload[0] != 0x5B {
		t.Errorf("payload = %v, expected [0x5B]", calls[0].Payload)
	}
	if !calls[0].Retained {
		t.Error("segment state should be retained")
	}

	client.Disconnect(0)
	port.Write(0x06)
	if n := len(client.PublishesTo("parking/display/segments")); n != 1 {
		t.Errorf("offline write should be dropped, publishes = %d", n)
	}

	nilPort := NewMQTTPort(func() MQTT.Client { return nil }, "x")
	nilPort.Write(0x06)
}

func TestCaption(t *testing.T) {
	tests := []struct {
		pattern uint8
		want    string
	}{
		{0, "blank"},
		{0x4F, "available: 3"},
		{0x3F, "available: 0"},
		{ErrorPattern, "segments: 1 lit"},
	}
	for _, tt := range tests {
		if got := Caption(tt.pattern); got != tt.want {
			t.Errorf("Caption(0x%02X) = %q, expected %q", tt.pattern, got, tt.want)
		}
	}
}

func TestMirrorPNG(t *testing.T) {
	m := NewMirror()
	d := NewSegmentDisplay(m)
	d.Render(1)

	if m.Pattern() != 0x06 {
		t.Errorf("mirror pattern = 0x%02X, expected 0x06", m.Pattern())
	}

	var buf bytes.Buffer
	if err := m.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG returned error: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("mirror output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != mirrorWidth || img.Bounds().Dy() != mirrorHeight {
		t.Errorf("image size = %v, expected %dx%d", img.Bounds(), mirrorWidth, mirrorHeight)
	}

	// segment b is lit for a 1, segment a is not
	lit := img.At(104, 50)
	dark := img.At(60, 16)
	if r, g, b, _ := lit.RGBA(); r>>8 != uint32(colorLit.R) || g>>8 != uint32(colorLit.G) || b>>8 != uint32(colorLit.B) {
		t.Errorf("segment b pixel = %v, expected lit", lit)
	}
	if r, _, _, _ := dark.RGBA(); r>>8 != uint32(colorDark.R) {
		t.Errorf("segment a pixel = %v, expected dark", dark)
	}
}
