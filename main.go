// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss/table"

	"signalmon/cmd"
	"signalmon/internal/config"
	"signalmon/internal/log"
	"signalmon/internal/source"
	"signalmon/internal/tui"
	"signalmon/pkg/build"
)

// main is the entry point for the instrument stream monitor.
//
// 1. Startup: build information, command line, configuration.
// 2. One-off commands such as listing ports.
// 3. Monitoring until the input ends or a termination signal arrives.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("development build: %v", err)
	}

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if options.Command == "" {
		// Help or version was printed.
		return
	}

	cfg, err := config.LoadConfig(options.ConfigPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	options.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.SetLevel(cfg.Level())

	if options.Command == cmd.CommandPorts {
		if !options.Pick {
			if err := listPorts(); err != nil {
				log.Fatalf("%v", err)
			}
			return
		}
		sel, err := tui.PickPort(cfg.Serial.BaudRate)
		if errors.Is(err, tui.ErrCancelled) {
			return
		}
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.Serial.Port, cfg.Serial.BaudRate = sel.Port, sel.BaudRate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := build.Get()
	log.Infof("%s %s", info.Name, info)
	if err := cmd.Monitor(ctx, cfg, options.Replay); err != nil {
		log.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

func listPorts() error {
	ports, err := source.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	t := table.New().Headers("PORT", "DETAILS")
	for _, p := range ports {
		t.Row(p.Name, p.Description())
	}
	fmt.Println(t)
	return nil
}
