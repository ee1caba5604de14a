package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/downfa11-org/logship/pkg/types"
	"golang.org/x/sync/errgroup"
)

type BenchmarkRunner struct {
	Addr                string
	Password            string
	NumProducers        int
	MessagesPerProducer int
	MessageSize         int
}

func NewBenchmarkRunner(addr, password string, producers, messages, size int) *BenchmarkRunner {
	return &BenchmarkRunner{
		Addr:                addr,
		Password:            password,
		NumProducers:        producers,
		MessagesPerProducer: messages,
		MessageSize:         size,
	}
}

// Run writes through NumProducers concurrent peers, then measures how fast
// a single replica can pull everything back from the start of the log.
func (b *BenchmarkRunner) Run(ctx context.Context) error {
	totalMessages := b.NumProducers * b.MessagesPerProducer
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.NumProducers; i++ {
		client := &BenchClient{
			Addr:        b.Addr,
			Password:    b.Password,
			NodeID:      uint32(1000 + i),
			NumMessages: b.MessagesPerProducer,
			MessageSize: b.MessageSize,
		}
		g.Go(func() error {
			if err := client.Produce(gctx); err != nil {
				return fmt.Errorf("producer %d: %w", client.NodeID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	produceDur := time.Since(start)

	drainStart := time.Now()
	reader := &BenchClient{Addr: b.Addr, Password: b.Password, NodeID: 999}
	records, bytes, err := reader.Drain(ctx, types.Start)
	if err != nil {
		return err
	}
	drainDur := time.Since(drainStart)

	fmt.Printf("\n🧪 BENCHMARK RESULT [replication] 🧪\n")
	fmt.Printf("-------------------------------------\n")
	fmt.Printf(" Producers     : %d\n", b.NumProducers)
	fmt.Printf(" Message Size  : %d bytes\n", b.MessageSize)
	fmt.Printf(" Total Messages: %d\n", totalMessages)
	fmt.Printf(" Append        : %v (%.2f msg/sec)\n", produceDur, float64(totalMessages)/produceDur.Seconds())
	fmt.Printf(" Pulled        : %d records, %d bytes\n", records, bytes)
	fmt.Printf(" Pull          : %v (%.2f MiB/sec)\n", drainDur, float64(bytes)/(1<<20)/drainDur.Seconds())
	fmt.Printf("-------------------------------------\n")
	return nil
}
