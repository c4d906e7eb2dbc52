// Command feedsim runs a synthetic feed server for local development.
// Point the service at it with EPIWATCH_FEED_URL=http://localhost:9090/feed.csv.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/epiwatch/internal/feedsim"
	"github.com/okian/epiwatch/pkg/logger"
)

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	step := flag.Duration("step", 30*time.Second, "feed drift interval")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := feedsim.New(feedsim.WithStep(*step), feedsim.WithLogger(log))
	if err := sim.Serve(ctx, *addr); err != nil && err != http.ErrServerClosed {
		log.Error(ctx, "feed simulator failed", logger.Error(err))
	}
}
