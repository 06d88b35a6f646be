package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"chordring/internal/client"
	"chordring/internal/ctxutil"
	"chordring/internal/domain"
)

// cmd/client is the interactive operator console: it queries a running
// node's /dht/v1/ endpoints for its successor, predecessor, successor
// cache, and finger table. It is ambient process tooling around the core,
// not part of the overlay-maintenance logic itself.
func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "address of a node to connect to")
	idBits := flag.Int("idbits", 160, "identifier space size in bits, must match the ring")
	succListSize := flag.Int("succlistsize", 3, "successor cache size, must match the ring")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	space, err := domain.NewSpace(*idBits, *succListSize)
	if err != nil {
		log.Fatalf("invalid identifier space: %v", err)
	}

	pool := client.New(space, *timeout)
	defer pool.Close()

	current, err := parseNodeRef(space, *addr)
	if err != nil {
		log.Fatalf("invalid address %q: %v", *addr, err)
	}

	fmt.Printf("chordring interactive console. Connected to %s\n", current.Addr())
	fmt.Println("Available commands: successor/predecessor/successors/fingers/lookup/notify/ping/use/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("chord[%s]> ", current.Addr()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}

		ctx, cancel := ctxutil.NewContext(ctxutil.WithTimeout(*timeout), ctxutil.WithTrace(current.ID))
		runCommand(ctx, pool, space, &current, args)
		if cancel != nil {
			cancel()
		}

		if args[0] == "exit" || args[0] == "quit" {
			break
		}
	}
	fmt.Println("bye")
}

func runCommand(ctx context.Context, pool *client.Pool, space domain.Space, current *domain.NodeRef, args []string) {
	switch args[0] {
	case "successor":
		start := time.Now()
		succ, err := pool.GetSuccessor(ctx, *current)
		report("successor", start, err, func() { printNode(succ) })

	case "predecessor":
		start := time.Now()
		pred, err := pool.GetPredecessor(ctx, *current)
		report("predecessor", start, err, func() {
			if pred == nil {
				fmt.Println("  (none)")
				return
			}
			printNode(*pred)
		})

	case "successors":
		start := time.Now()
		list, err := pool.GetSuccessors(ctx, *current)
		report("successors", start, err, func() { printNodeList(list) })

	case "fingers":
		start := time.Now()
		list, err := pool.GetFingers(ctx, *current)
		report("fingers", start, err, func() { printNodeList(list) })

	case "ping":
		start := time.Now()
		err := pool.Ping(ctx, *current)
		report("ping", start, err, func() { fmt.Println("  alive") })

	case "lookup":
		if len(args) < 2 {
			fmt.Println("usage: lookup <hex-id> [hops]")
			return
		}
		target, err := space.FromHexString(args[1])
		if err != nil {
			fmt.Printf("invalid id: %v\n", err)
			return
		}
		hops := 0
		if len(args) >= 3 {
			if h, err := strconv.Atoi(args[2]); err == nil {
				hops = h
			}
		}
		start := time.Now()
		respHops, succ, err := pool.FindSuccessor(ctx, *current, target, hops)
		report("lookup", start, err, func() {
			fmt.Printf("  hops=%d\n", respHops)
			printNode(succ)
		})

	case "notify":
		if len(args) < 3 {
			fmt.Println("usage: notify <host> <port>")
			return
		}
		port, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Printf("invalid port: %v\n", err)
			return
		}
		candidate := domain.NewNodeRef(space, args[1], port)
		start := time.Now()
		err = pool.Notify(ctx, *current, candidate)
		report("notify", start, err, func() { fmt.Println("  ok") })

	case "use":
		if len(args) < 2 {
			fmt.Println("usage: use <host:port>")
			return
		}
		n, err := parseNodeRef(space, args[1])
		if err != nil {
			fmt.Printf("invalid address: %v\n", err)
			return
		}
		*current = n
		fmt.Printf("switched connection to %s\n", current.Addr())

	case "exit", "quit":
		fmt.Println("bye")

	default:
		fmt.Printf("unknown command: %s\n", args[0])
	}
}

func report(label string, start time.Time, err error, onSuccess func()) {
	latency := time.Since(start)
	if err != nil {
		fmt.Printf("%s failed: %v | latency=%s\n", label, err, latency)
		return
	}
	fmt.Printf("%s | latency=%s\n", label, latency)
	onSuccess()
}

func printNode(n domain.NodeRef) {
	fmt.Printf("  id=%s addr=%s\n", n.ID.ToHexString(false), n.Addr())
}

func printNodeList(list []*domain.NodeRef) {
	for i, n := range list {
		if n == nil {
			fmt.Printf("  [%d] (none)\n", i)
			continue
		}
		fmt.Printf("  [%d] id=%s addr=%s\n", i, n.ID.ToHexString(false), n.Addr())
	}
}

func parseNodeRef(space domain.Space, addr string) (domain.NodeRef, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return domain.NodeRef{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return domain.NewNodeRef(space, host, port), nil
}
