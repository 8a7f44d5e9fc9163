// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signalmon/internal/analysis"
	"signalmon/internal/audio"
	"signalmon/internal/config"
	"signalmon/internal/log"
	"signalmon/internal/source"
	"signalmon/internal/storage"
	"signalmon/internal/transport"
	"signalmon/internal/transport/udp"
)

// ShutdownTimeout bounds how long Monitor waits for the sources to stop.
const ShutdownTimeout = 5 * time.Second

// ErrNoPort is returned when neither a port nor a replay file was given.
var ErrNoPort = errors.New("no serial port configured, use --port or 'ports --pick'")

// Monitor runs the pipeline described by cfg until ctx ends or the input
// completes. replay, when set, is read instead of the serial port.
func Monitor(ctx context.Context, cfg *config.Config, replay string) (err error) {
	port, name, err := openInput(cfg, replay)
	if err != nil {
		return err
	}

	serial, err := source.NewSerial(port, source.Options{
		Name:         name,
		ReadTimeout:  cfg.Serial.ReadTimeout,
		EmitInterval: cfg.Stream.EmitInterval,
		StartMarker:  cfg.Stream.StartMarker,
		MaxTokenLen:  cfg.Stream.MaxTokenLen,
		MaxChannels:  cfg.Stream.MaxChannels,
	})
	if err != nil {
		port.Close()
		return err
	}

	sup := source.NewSupervisor()
	if err := sup.Add(serial, nil); err != nil {
		serial.Stop()
		return err
	}

	var analyzer *analysis.Analyzer
	if cfg.Spectrum.Enabled {
		analyzer, err = newAnalyzer(cfg, serial)
		if err == nil {
			err = sup.Add(analyzer, serial)
		}
		if err != nil {
			serial.Stop()
			return err
		}
	}

	sinks, wav, err := openSinks(ctx, cfg, name)
	if err != nil {
		if analyzer != nil {
			analyzer.Stop()
		}
		serial.Stop()
		return err
	}
	defer func() {
		all := sinks
		if wav != nil {
			all = append(all, wav)
		}
		if cErr := transport.CloseAll(all...); cErr != nil && err == nil {
			err = cErr
		}
	}()

	// Subscribe every sink before the sources start so no event is missed.
	var pumps sync.WaitGroup
	pump := func(src source.Source, ts []transport.Transport) {
		sub := src.Subscribe(cfg.Stream.EventBuffer)
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			transport.Pump(sub, ts...)
		}()
	}
	serialSinks := sinks
	if wav != nil {
		serialSinks = append(append([]transport.Transport(nil), sinks...), wav)
	}
	pump(serial, serialSinks)
	if analyzer != nil {
		pump(analyzer, sinks)
		analyzer.Start()
	}
	serial.Start()

	// Derived sources finish on their own once the serial source completes.
	waitErr := sup.Wait(ctx, false)
	if waitErr != nil {
		log.Infof("shutting down: %v", waitErr)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		return err
	}
	pumps.Wait()
	return sup.Err()
}

func newAnalyzer(cfg *config.Config, parent source.Source) (*analysis.Analyzer, error) {
	opts, err := analysis.OptionsFromConfig(cfg.Spectrum, cfg.Stream.EmitInterval, cfg.Stream.EventBuffer)
	if err != nil {
		return nil, err
	}
	return analysis.New(parent, opts)
}

func openInput(cfg *config.Config, replay string) (source.Port, string, error) {
	if replay != "" {
		port, err := source.OpenReplay(replay)
		return port, replay, err
	}
	if cfg.Serial.Port == "" {
		return nil, "", ErrNoPort
	}
	port, err := source.OpenSerial(cfg.Serial)
	return port, cfg.Serial.Port, err
}

// openSinks builds the shared sinks and, when enabled, the WAV sink that only
// the serial source feeds.
func openSinks(ctx context.Context, cfg *config.Config, name string) ([]transport.Transport, transport.Transport, error) {
	var sinks []transport.Transport
	fail := func(err error) ([]transport.Transport, transport.Transport, error) {
		_ = transport.CloseAll(sinks...)
		return nil, nil, err
	}

	if cfg.Transport.Log {
		sinks = append(sinks, transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		sinks = append(sinks, transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr))
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return fail(err)
		}
		pub, err := udp.NewUDPPublisher(sender, cfg.Transport.UDPMaxPacket)
		if err != nil {
			sender.Close()
			return fail(err)
		}
		sinks = append(sinks, pub)
	}
	if cfg.Recording.SQLiteEnabled {
		rec := storage.NewRecorder(cfg.Recording.SQLitePath)
		if _, err := rec.CreateSession(ctx, name, cfg); err != nil {
			rec.Close()
			return fail(fmt.Errorf("sqlite: %w", err))
		}
		sinks = append(sinks, rec)
	}

	var wav transport.Transport
	if cfg.Recording.WAVEnabled {
		rec, err := audio.NewRecorder(audio.OptionsFromConfig(cfg.Recording))
		if err != nil {
			return fail(err)
		}
		wav = rec
	}
	return sinks, wav, nil
}
