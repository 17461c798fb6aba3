// Command bitkv is an interactive REPL over a bitkv database, the
// spiritual descendant of the teacher lineage's plain bufio.Scanner loop,
// now driven by parsed flags instead of a hardcoded log path.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"bitkv/kv"
)

func help() {
	fmt.Println("commands:")
	fmt.Println("  set <key> <value>")
	fmt.Println("  get <key>")
	fmt.Println("  del <key>")
	fmt.Println("  scan <lo> <hi>")
	fmt.Println("  compact")
	fmt.Println("  exit")
}

func main() {
	var (
		dbPath      = flag.String("db", "db.log", "path to the database log file")
		configPath  = flag.String("config", "", "optional bitkv.jsonc config file")
		noCompact   = flag.Bool("no-compact-on-open", false, "skip the initial compaction pass on open")
		metricsAddr = flag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (empty disables metrics)")
	)
	flag.Parse()

	cfg := kv.DefaultConfig()
	if *configPath != "" {
		loaded, err := kv.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *noCompact {
		cfg.CompactOnOpen = false
	}

	var metrics *kv.Metrics
	var reg *prometheus.Registry
	if *metricsAddr != "" {
		reg = prometheus.NewRegistry()
		metrics = kv.NewMetrics(reg, *dbPath)
	}

	db, err := kv.OpenWithConfig(*dbPath, cfg, metrics)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if reg != nil {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	runREPL(db)

	if err := db.Close(); err != nil {
		log.Printf("close db: %v", err)
	}
	stop()
	if err := g.Wait(); err != nil {
		log.Printf("background services: %v", err)
	}
}

func runREPL(db *kv.Engine) {
	fmt.Println("bitkv CLI — Bitcask-style append-only log backed KV")
	help()
	in := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		switch cmd {
		case "help":
			help()
		case "set":
			if len(parts) < 3 {
				fmt.Println("usage: set <key> <value>")
			} else {
				key := parts[1]
				value := strings.Join(parts[2:], " ")
				if err := db.Set([]byte(key), []byte(value)); err != nil {
					fmt.Printf("set error: %v\n", err)
				} else {
					fmt.Println("OK")
				}
			}
		case "get":
			if len(parts) != 2 {
				fmt.Println("usage: get <key>")
			} else {
				val, ok, err := db.Get([]byte(parts[1]))
				switch {
				case err != nil:
					fmt.Printf("get error: %v\n", err)
				case !ok:
					fmt.Println("(nil)")
				default:
					fmt.Printf("%s\n", string(val))
				}
			}
		case "del":
			if len(parts) != 2 {
				fmt.Println("usage: del <key>")
			} else if err := db.Del([]byte(parts[1])); err != nil {
				fmt.Printf("del error: %v\n", err)
			} else {
				fmt.Println("OK")
			}
		case "scan":
			if len(parts) != 3 {
				fmt.Println("usage: scan <lo> <hi>")
			} else {
				pairs, err := db.Scan([]byte(parts[1]), []byte(parts[2]))
				if err != nil {
					fmt.Printf("scan error: %v\n", err)
				} else {
					for _, p := range pairs {
						fmt.Printf("%s = %s\n", string(p.Key), string(p.Value))
					}
				}
			}
		case "compact":
			fmt.Println("Compacting log...")
			if err := db.Compact(); err != nil {
				fmt.Printf("compact error: %v\n", err)
			} else {
				fmt.Println("Compact done.")
			}
		case "exit", "quit":
			fmt.Println("bye")
			return
		default:
			fmt.Println("unknown command:", cmd)
			help()
		}
		fmt.Print("> ")
	}
	if err := in.Err(); err != nil {
		log.Printf("input error: %v", err)
	}
}
