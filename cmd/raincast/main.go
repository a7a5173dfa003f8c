package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/rfsavaris/raincast/internal/api"
	"github.com/rfsavaris/raincast/internal/ingest"
	"github.com/rfsavaris/raincast/internal/predictor"
	"github.com/rfsavaris/raincast/internal/scheduler"
	"github.com/rfsavaris/raincast/internal/state"
	"github.com/rfsavaris/raincast/internal/store"
)

var cli struct {
	DB             string        `help:"Path to SQLite database." env:"RAINCAST_DB" default:"data/raincast.db"`
	Port           string        `help:"HTTP server port." env:"PORT" default:"8080"`
	InferCommand   string        `help:"Command that runs the inference process." env:"INFER_COMMAND" default:"python3 model/server.py"`
	InferTimeout   time.Duration `help:"Deadline for one inference run." env:"INFER_TIMEOUT" default:"60s"`
	CloudCoverWait time.Duration `help:"How long a forecast waits for the first cloud cover value." env:"CLOUDCOVER_WAIT" default:"30s"`
	Latitude       float64       `help:"Sensor site latitude, for cloud cover lookups." env:"SITE_LATITUDE" default:"-29.6842"`
	Longitude      float64       `help:"Sensor site longitude, for cloud cover lookups." env:"SITE_LONGITUDE" default:"-53.8069"`
	NoPoll         bool          `help:"Disable the Open-Meteo cloud cover poller (push-only mode)."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("raincast"),
		kong.Description("Rain-probability forecast service for a single weather sensor."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	cache := state.NewCache()
	gate := ingest.NewGate(cache)

	invoker := predictor.New(cache, strings.Fields(cli.InferCommand))
	invoker.SetInferTimeout(cli.InferTimeout)
	invoker.SetCloudCoverWait(cli.CloudCoverWait)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	poller := ingest.NewCloudCoverPoller(cache, cli.Latitude, cli.Longitude)
	if !cli.NoPoll {
		go poller.Run(ctx)
	} else {
		log.Println("cloud cover polling disabled (--no-poll)")
	}

	sched := scheduler.New(st, cache, invoker)
	if err := sched.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer sched.Stop()

	server := api.NewServer(st, cache, gate, invoker, cli.Port)
	log.Printf("starting server on :%s", cli.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
