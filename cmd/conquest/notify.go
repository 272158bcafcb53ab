package main

import (
	"context"
	"io"

	"github.com/stravx/conquest/internal/config"
	"github.com/stravx/conquest/internal/engine"
	"github.com/stravx/conquest/internal/notify"
	"github.com/stravx/conquest/internal/notify/influx"
	"github.com/stravx/conquest/internal/notify/websocket"
)

// sinks are the outbound targets for territory events and metrics.
type sinks struct {
	notifier *notify.Fanout
	metrics  engine.MetricWriter
	closers  []io.Closer
}

func (s *sinks) Close() error {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			Logger.Warn("Failed to close notifier", "error", err)
		}
	}
	return nil
}

// openSinks always logs events. The websocket streamer and the InfluxDB
// writer join when enabled; a sink that fails to start is skipped.
func openSinks(ctx context.Context) *sinks {
	s := &sinks{
		notifier: notify.NewFanout(notify.LogNotifier{Logger: SlogManager.Component("events")}),
	}

	if wsCfg := config.GetWebsocketConfig(); wsCfg.Enabled {
		streamer := websocket.New(wsCfg.Config, SlogManager.Component("websocket"))
		if err := streamer.Init(); err != nil {
			Logger.Error("Failed to start websocket streamer", "url", wsCfg.URL, "error", err)
		} else {
			s.notifier.Add(streamer)
			s.closers = append(s.closers, streamer)
			Logger.Info("Websocket streamer connected", "url", wsCfg.URL)
		}
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		writer := influx.NewWriter(influxCfg, ZLogger.With().Str("component", "influx").Logger())
		if err := writer.Connect(ctx); err != nil {
			Logger.Error("Failed to start InfluxDB writer", "host", influxCfg.Host, "error", err)
		} else {
			s.notifier.Add(writer)
			s.metrics = writer
			s.closers = append(s.closers, writer)
		}
	}
	return s
}
