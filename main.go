package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/elijahnyp/parking_controller/dispatch"
	"github.com/elijahnyp/parking_controller/display"
	"github.com/elijahnyp/parking_controller/sensor"
	"github.com/elijahnyp/parking_controller/state"
	. "github.com/elijahnyp/parking_controller/util"
)

func sensorAddrs(settings LotSettings) []uint8 {
	addrs := make([]uint8, len(settings.Slots))
	for i, s := range settings.Slots {
		addrs[i] = uint8(s.Address)
	}
	return addrs
}

func main() {
	LogInit("info")
	SetupConfig()
	RegisterNewConfigListener(func() { LogInit(Config.GetString("log_level")) })
	OnNewConfig()

	settings, err := LoadLotSettings()
	if err != nil {
		Logger.Fatal().Err(err).Msg("configuration rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topics := sensor.Topics{Prefix: settings.TopicPrefix}
	var link state.SensorLink
	var sim *sensor.SimLink
	if settings.Simulate {
		Logger.Warn().Msg("running on the simulated sensor bus")
		sim = sensor.NewSimLink(sensorAddrs(settings)...)
		link = sim
	} else {
		mlink := sensor.NewMQTTLink(CurrentClient, topics, settings.BusTimeout)
		RegisterMQTTSubscription(topics.ReplyFilter(), mlink.HandleReply)
		link = mlink
	}

	ports := []display.Port{display.NewMQTTPort(CurrentClient, Topic("display", "segments"))}
	ctrl, err := newController(settings, link, ports, mqttReporter{client: CurrentClient})
	if err != nil {
		Logger.Fatal().Err(err).Msg("unable to build controller")
	}

	// signal sources: these only raise flags
	RegisterMQTTSubscription(topics.ChangeFilter(), sensor.NewChangeHandler(topics, ctrl.slotByAddr, ctrl.flags))
	RegisterMQTTSubscription(Topic("button"), ctrl.buttonHandler)
	RegisterMQTTConnectHook("haadvertise", func(client MQTT.Client) {
		if !Config.GetBool("ha_advertise") {
			return
		}
		if err := AdvertiseHA(settings.Slots, client); err != nil {
			Logger.Error().Msgf("Error advertising to Home Assistant: %v", err)
		}
	})
	if err := MqttInit(); err != nil {
		if !settings.Simulate {
			Logger.Fatal().Err(err).Msg("sensor bus unavailable")
		}
		Logger.Warn().Msgf("continuing without broker: %v", err)
	}

	go ctrl.hub.Run()
	monitor := NewMonitorServer(0)
	ctrl.routes(monitor)
	if err := monitor.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}
	monitor.RestartOnPortChange()

	if sim != nil {
		sim.OnChange(ctrl.signalAddr)
		go sim.Wander(ctx, Config.GetDuration("simulate_interval"))
	}

	// sensors need a moment after power-up before they answer
	select {
	case <-ctx.Done():
		return
	case <-time.After(settings.StartupDelay):
	}

	go dispatch.RunTicker(ctx, settings.TickPeriod, ctrl.flags)
	Logger.Info().Msg("ready")
	if err := ctrl.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		Logger.Error().Err(err).Msg("dispatch loop stopped")
	}

	Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := monitor.Stop(shutdownCtx); err != nil {
		Logger.Warn().Msgf("Error stopping monitor server: %v", err)
	}
	if Client != nil && Client.IsConnected() {
		Client.Publish(OnlineTopic(), 0, true, "offline").WaitTimeout(time.Second)
		Client.Disconnect(250)
	}
}
