// Command meetsyncd runs the meetsync daemon in the foreground with the
// default configuration. Service managers that prefer a dedicated binary
// use it instead of `meetsync run`.
package main

import (
	"context"
	"errors"
	"log"

	"meetsync/internal/config"
	"meetsync/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateServices(); err != nil {
		log.Fatalf("validate config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("daemon: %v", err)
	}
}
