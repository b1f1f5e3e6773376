package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/skyex/desk/infra/config"
	"github.com/skyex/desk/internal/api"
	"github.com/skyex/desk/internal/broker"
	"github.com/skyex/desk/internal/engine"
	"github.com/skyex/desk/internal/ledger"
	"github.com/skyex/desk/internal/metrics"
	"github.com/skyex/desk/internal/rate"
	"github.com/skyex/desk/internal/registry"
	"github.com/skyex/desk/internal/storage"
	json_storage "github.com/skyex/desk/internal/storage/file/json"
	"github.com/skyex/desk/user/local"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	var cfg config.Desk
	config.MustLoad("desk", &cfg)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.DataDir != "" {
		storage.DefaultDir = cfg.DataDir
	}

	shard := func(table string) storage.Shard {
		if cfg.Dry {
			return storage.VoidShard()
		}
		return storage.RetryShard(json_storage.BlobShard(table), 3, 50*time.Millisecond)
	}

	rates, err := rate.NewTable(shard(storage.RatesTable))
	if err != nil {
		log.Fatalf("error loading rates: %s", err.Error())
	}
	brokers, err := broker.NewDirectory(shard(storage.BrokersTable))
	if err != nil {
		log.Fatalf("error loading brokers: %s", err.Error())
	}
	reg, err := registry.New(shard(storage.TicketsTable))
	if err != nil {
		log.Fatalf("error loading tickets: %s", err.Error())
	}
	led, err := ledger.New(shard(storage.LedgerTable))
	if err != nil {
		log.Fatalf("error loading ledger: %s", err.Error())
	}

	ctx, cnl := context.WithCancel(context.Background())
	defer cnl()

	u, err := local.NewUser(cfg.MessageLog)
	if err != nil {
		log.Fatalf("error creating user: %s", err.Error())
	}
	err = u.Run(ctx)
	if err != nil {
		log.Fatalf("error running user: %s", err.Error())
	}

	eng := engine.New(rates, brokers, reg, led).
		WithUser(u).
		WithRoles(api.AnyRole{})
	zlog.Info().
		Int("rates", len(eng.Rates())).
		Int("open", reg.Open()).
		Msg("desk is up")

	if cfg.MetricsPort > 0 {
		go func() {
			err := metrics.Serve(cfg.MetricsPort)
			if err != nil {
				zlog.Error().Err(err).Int("port", cfg.MetricsPort).Msg("could not serve metrics")
			}
		}()
	}

	// local command loop standing in for the chat gateway
	scanner := bufio.NewScanner(os.Stdin)
	var id int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id++
		reply, err := eng.Process(api.NewCommand(id, "local", line))
		if err != nil {
			zlog.Debug().Err(err).Str("command", line).Msg("command failed")
		}
		if reply != nil {
			fmt.Println(reply.Text)
		}
	}
	cnl()
}
