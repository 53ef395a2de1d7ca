// Command duskbase is a REPL that echoes input lines while exercising the
// storage core underneath: the index commands run against a real buffer
// pool and hash index backed by a page file on disk. A lock manager is
// constructed and "begin" registers a transaction, but no command takes
// locks.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"duskbase/pkg/buffer"
	"duskbase/pkg/disk"
	"duskbase/pkg/hashindex"
	"duskbase/pkg/lock"
	"duskbase/pkg/logging"
	"duskbase/pkg/primitives"
	"duskbase/pkg/txn"
	"duskbase/pkg/types"
	"duskbase/pkg/walstub"
)

type config struct {
	dataFile      string
	poolInstances int
	poolSize      int
}

func parseArguments() config {
	var c config
	flag.StringVar(&c.dataFile, "data", "duskbase.pages", "backing page file")
	flag.IntVar(&c.poolInstances, "instances", 2, "number of parallel buffer pool instances")
	flag.IntVar(&c.poolSize, "pool-size", primitives.DefaultPoolSize, "frames per buffer pool instance")
	flag.Parse()
	return c
}

func main() {
	logging.InitDefault()
	defer logging.Close()

	cfg := parseArguments()

	dm, err := disk.NewFileManager(cfg.dataFile)
	if err != nil {
		logging.WithError(err).Error("failed to open page file", "path", cfg.dataFile)
		os.Exit(1)
	}
	defer dm.Close()

	pool := buffer.NewPool(cfg.poolInstances, cfg.poolSize, dm, walstub.NewManager())
	logging.WithComponent("buffer").Info("pool opened", "instances", cfg.poolInstances, "pool_size", cfg.poolSize)

	table, err := hashindex.NewTable(pool)
	if err != nil {
		logging.WithError(err).Error("failed to initialize hash index")
		os.Exit(1)
	}
	lockMgr := lock.NewManager()
	registry := txn.NewRegistry()
	logging.WithComponent("lock").Info("lock manager ready")

	fmt.Println("duskbase REPL — commands: insert <k> <v>, get <k>, remove <k> <v>, verify, begin, quit")
	runREPL(os.Stdin, os.Stdout, table, lockMgr, registry)
}

func runREPL(in *os.File, out *os.File, table *hashindex.Table, lockMgr *lock.Manager, registry *txn.Registry) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "duskbase> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		fmt.Fprintln(out, line)

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		handleCommand(out, table, lockMgr, registry, fields)
	}
}

func handleCommand(out *os.File, table *hashindex.Table, lockMgr *lock.Manager, registry *txn.Registry, fields []string) {
	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)
	case "begin":
		t := registry.Begin(txn.RepeatableRead)
		fmt.Fprintf(out, "started txn %d\n", t.ID())
	case "insert":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: insert <key> <value-page-id>")
			return
		}
		k, v, err := parseKV(fields[1], fields[2])
		if err != nil {
			fmt.Fprintln(out, err)
			return
		}
		ok, err := table.Insert(k, primitives.RID{PageID: v, Slot: 0})
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, ok)
	case "get":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: get <key>")
			return
		}
		key, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Fprintln(out, "invalid key:", err)
			return
		}
		values, err := table.GetValue(types.Int64Field(key))
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, values)
	case "remove":
		if len(fields) != 3 {
			fmt.Fprintln(out, "usage: remove <key> <value-page-id>")
			return
		}
		k, v, err := parseKV(fields[1], fields[2])
		if err != nil {
			fmt.Fprintln(out, err)
			return
		}
		ok, err := table.Remove(k, primitives.RID{PageID: v, Slot: 0})
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			return
		}
		fmt.Fprintln(out, ok)
	case "verify":
		if err := table.VerifyIntegrity(); err != nil {
			fmt.Fprintln(out, "integrity violation:", err)
			return
		}
		fmt.Fprintln(out, "ok")
	default:
		fmt.Fprintln(out, "unknown command:", fields[0])
	}
}

func parseKV(keyStr, valueStr string) (types.Int64Field, primitives.PageID, error) {
	key, err := strconv.ParseInt(keyStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid key: %w", err)
	}
	value, err := strconv.ParseInt(valueStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value: %w", err)
	}
	return types.Int64Field(key), primitives.PageID(int32(value)), nil
}
