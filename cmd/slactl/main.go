// Command slactl inspects the SLA alert queue and re-arms alerts for a ticket.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mark3748/helpdesk-sla/internal/notify"
)

func main() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	if err := run(context.Background(), notify.New(rdb, 0), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, d *notify.Dispatcher, args []string, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "usage: slactl pending [n] | rearm <ticket_id>")
		return nil
	}
	switch args[0] {
	case "pending":
		limit := int64(10)
		if len(args) > 1 {
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid count %q", args[1])
			}
			limit = n
		}
		n, jobs, err := d.Pending(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d queued\n", n)
		for _, j := range jobs {
			fmt.Fprintf(out, "%s %s\n", j.Type, j.Data)
		}
	case "rearm":
		if len(args) < 2 {
			return fmt.Errorf("ticket id required")
		}
		n, err := d.Rearm(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d alert marker(s) for %s\n", n, args[1])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
