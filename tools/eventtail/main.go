// Command eventtail follows the orchestrator's Redis event mirror and prints
// events as they arrive. Useful for debugging fanout without holding a
// WebSocket open.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/helixmesh/orchestrator/internal/realtime"
)

func main() {
	addr := flag.String("redis", "localhost:6379", "Redis address of the event mirror")
	room := flag.String("room", "", "Room to tail (empty tails the broadcast stream)")
	fromStart := flag.Bool("from-start", false, "Print retained history before following")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{Addr: *addr})
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach redis at %s: %v\n", *addr, err)
		os.Exit(1)
	}

	stream := realtime.StreamKey(*room)
	cursor := "$"
	if *fromStart {
		cursor = "0"
	}
	fmt.Fprintf(os.Stderr, "tailing %s (ctrl-c to stop)\n", stream)

	for {
		res, err := client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, cursor},
			Block:   0,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
			os.Exit(1)
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				cursor = msg.ID
				fmt.Printf("%s %s %s\n",
					msg.Values["timestamp"], msg.Values["type"], msg.Values["payload"])
			}
		}
	}
}
