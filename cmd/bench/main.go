package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/downfa11-org/logship/pkg/bench"
)

func main() {
	addr := flag.String("addr", "localhost:19288", "primary address")
	password := flag.String("password", "password", "replication password")
	producers := flag.Int("producers", 8, "number of concurrent producers")
	messages := flag.Int("messages", 1000, "messages per producer")
	size := flag.Int("size", 256, "payload size in bytes")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := bench.NewBenchmarkRunner(*addr, *password, *producers, *messages, *size)
	if err := runner.Run(ctx); err != nil {
		log.Fatalf("❌ Benchmark failed: %v", err)
	}
}
