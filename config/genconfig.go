// genconfig writes a parking_controller.yaml for a lot whose sensors sit on
// consecutive bus addresses.
//
//	go run ./config -slots 4 -base 0x20 > config/parking_controller.yaml
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"
)

type TData struct { //nolint:govet // template data, memory layout not critical
	Slots         []Slot
	BrokerURI     string
	TopicPrefix   string
	Policy        string
	TickPeriod    time.Duration
	BusTimeout    time.Duration
	BlinkInterval int
	BlinkCount    int
	Simulate      bool
}

type Slot struct {
	Name    string
	Address int
}

const configTemplate = `log_level: info
broker_uri: {{ .BrokerURI }}
topic_prefix: {{ .TopicPrefix }}
simulate: {{ .Simulate }}
ha_advertise: true
details_port: 8080

tick_period: {{ .TickPeriod }}
bus_timeout: {{ .BusTimeout }}
bus_retries: 0
sensor_failure_policy: {{ .Policy }}
blink_interval: {{ .BlinkInterval }}
blink_count: {{ .BlinkCount }}
startup_delay: 1s

slots:
{{- range .Slots }}
  - name: {{ .Name }}
    address: {{ printf "0x%02X" .Address }}
{{- end }}
`

func buildData(count, base int, broker, prefix, policy string, simulate bool) (TData, error) {
	if count < 1 || count > 9 {
		return TData{}, fmt.Errorf("slot count %d outside 1..9", count)
	}
	if base < 0 || base+count-1 > 0x7F {
		return TData{}, fmt.Errorf("addresses 0x%X..0x%X do not fit a 7-bit bus", base, base+count-1)
	}
	data := TData{
		BrokerURI:     broker,
		TopicPrefix:   prefix,
		Policy:        policy,
		TickPeriod:    25 * time.Millisecond,
		BusTimeout:    20 * time.Millisecond,
		BlinkInterval: 20,
		BlinkCount:    5,
		Simulate:      simulate,
	}
	for i := 0; i < count; i++ {
		data.Slots = append(data.Slots, Slot{Name: fmt.Sprintf("bay%d", i+1), Address: base + i})
	}
	return data, nil
}

func render(w io.Writer, data TData) error {
	t, err := template.New("parking_controller").Option("missingkey=error").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	return t.Execute(w, data)
}

func main() {
	count := flag.Int("slots", 3, "number of parking slots")
	base := flag.Int("base", 0x1A, "bus address of the first sensor")
	broker := flag.String("broker", "tcp://mqtt:1883", "MQTT broker URI")
	prefix := flag.String("prefix", "parking", "MQTT topic prefix")
	policy := flag.String("policy", "hold", "sensor failure policy: hold, vacant or occupied")
	simulate := flag.Bool("simulate", false, "use the simulated sensor bus")
	flag.Parse()

	data, err := buildData(*count, *base, *broker, *prefix, *policy, *simulate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(2)
	}
	if err := render(os.Stdout, data); err != nil {
		fmt.Fprintf(os.Stderr, "Template execution error: %v\n", err)
		os.Exit(1)
	}
}
