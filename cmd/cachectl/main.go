// cachectl is a debug and inspection tool for sharedmmap cache files.
//
// Usage:
//
//	cachectl [flags] <share-file>
//
// Flags:
//
//	-n, --num-pages     Page count (default 89)
//	-p, --page-size     Bytes per page (default 65536)
//	-s, --start-slots   Initial slot-table size per page (default 89)
//	-c, --config        Path to a JSONC (hujson) config file
//	    --init          Force re-creation of the backing file
//
// Commands (in REPL):
//
//	put <key> <value> [ttl]   Store a value, optional TTL in seconds
//	get <key>                 Fetch a value
//	del <key>                 Delete a key
//	iterate                   List every live entry
//	stats <page>              Show a page's read counters
//	expunge <page> <mode>     Run calc+do expunge on a page (mode 0/1/2)
//	help                      Show this help
//	exit / quit / q           Exit
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/fastshare/sharedmmap"
)

// fileConfig mirrors the JSONC-with-comments config file shape, layered
// under CLI flags the same way the teacher's ticket tool layers config
// file values under explicit overrides.
type fileConfig struct {
	NumPages   int `json:"num_pages"`
	PageSize   int `json:"page_size"`
	StartSlots int `json:"start_slots"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	flagSet := flag.NewFlagSet("cachectl", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	numPages := flagSet.IntP("num-pages", "n", 0, "page count")
	pageSize := flagSet.IntP("page-size", "p", 0, "bytes per page")
	startSlots := flagSet.IntP("start-slots", "s", 0, "initial slot-table size per page")
	configPath := flagSet.StringP("config", "c", "", "path to a JSONC config file")
	initFile := flagSet.Bool("init", false, "force re-creation of the backing file")

	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	rest := flagSet.Args()
	if len(rest) != 1 {
		fmt.Fprintln(errOut, "usage: cachectl [flags] <share-file>")
		return 2
	}

	fileCfg, err := loadFileConfig(*configPath)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	opts := sharedmmap.Options{
		SharePath:  rest[0],
		NumPages:   firstNonZero(*numPages, fileCfg.NumPages),
		PageSize:   firstNonZero(*pageSize, fileCfg.PageSize),
		StartSlots: firstNonZero(*startSlots, fileCfg.StartSlots),
		InitFile:   *initFile,
	}

	c, err := sharedmmap.Open(opts)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer c.Close()

	repl := &repl{c: c, out: out, errOut: errOut}
	return repl.run()
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

type repl struct {
	c      *sharedmmap.Cache
	out    *os.File
	errOut *os.File
	liner  *liner.State
}

func (r *repl) run() int {
	r.liner = liner.NewLiner()
	defer r.liner.Close()
	r.liner.SetCtrlCAborts(true)

	for {
		line, err := r.liner.Prompt("cachectl> ")
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		fields := strings.Fields(line)
		cmd := fields[0]
		cmdArgs := fields[1:]

		switch cmd {
		case "exit", "quit", "q":
			return 0
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(cmdArgs)
		case "get":
			r.cmdGet(cmdArgs)
		case "del", "delete":
			r.cmdDel(cmdArgs)
		case "iterate", "ls":
			r.cmdIterate()
		case "stats":
			r.cmdStats(cmdArgs)
		case "expunge":
			r.cmdExpunge(cmdArgs)
		default:
			fmt.Fprintf(r.errOut, "unknown command %q; type 'help'\n", cmd)
		}
	}
	return 0
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, `commands:
  put <key> <value> [ttl]   store a value, optional TTL in seconds
  get <key>                 fetch a value
  del <key>                 delete a key
  iterate                   list every live entry
  stats <page>               show a page's read counters
  expunge <page> <mode>      run calc+do expunge on a page (mode 0/1/2)
  help                       show this help
  exit / quit / q            exit`)
}

func (r *repl) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(r.errOut, "usage: put <key> <value> [ttl]")
		return
	}
	var ttl uint64
	if len(args) >= 3 {
		v, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Fprintln(r.errOut, "bad ttl:", err)
			return
		}
		ttl = v
	}
	if err := r.c.PutByKey([]byte(args[0]), []byte(args[1]), ttl, 0); err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	fmt.Fprintln(r.out, "ok")
}

func (r *repl) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.errOut, "usage: get <key>")
		return
	}
	val, flags, err := r.c.GetByKey([]byte(args[0]))
	if err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	fmt.Fprintf(r.out, "%s (flags=%d)\n", val, flags)
}

func (r *repl) cmdDel(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.errOut, "usage: del <key>")
		return
	}
	if _, err := r.c.DeleteByKey([]byte(args[0])); err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	fmt.Fprintln(r.out, "ok")
}

func (r *repl) cmdIterate() {
	it := r.c.NewIterator()
	defer it.Close()
	n := 0
	for {
		ev, err := it.Next()
		if err != nil {
			fmt.Fprintln(r.errOut, "error:", err)
			return
		}
		if ev == nil {
			break
		}
		fmt.Fprintf(r.out, "%s = %s (last_access=%d)\n", ev.Key, ev.Value, ev.LastAccess)
		n++
	}
	fmt.Fprintf(r.out, "%d entries\n", n)
}

func (r *repl) cmdStats(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.errOut, "usage: stats <page>")
		return
	}
	page, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(r.errOut, "bad page:", err)
		return
	}
	if err := r.c.Lock(page); err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	defer r.c.Unlock()
	st, err := r.c.PageStats()
	if err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	fmt.Fprintf(r.out, "reads=%d hits=%d\n", st.NReads, st.NReadHits)
}

func (r *repl) cmdExpunge(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(r.errOut, "usage: expunge <page> <mode 0|1|2>")
		return
	}
	page, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(r.errOut, "bad page:", err)
		return
	}
	modeNum, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(r.errOut, "bad mode:", err)
		return
	}

	if err := r.c.Lock(page); err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	defer r.c.Unlock()

	plan, err := r.c.CalcExpunge(sharedmmap.ExpungeMode(modeNum), -1)
	if err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	fmt.Fprintf(r.out, "kept=%d evicted=%d new_num_slots=%d noop=%v\n",
		plan.KeptCount(), plan.EvictedCount(), plan.NewNumSlots(), plan.NoOp())

	if err := r.c.DoExpunge(plan); err != nil {
		fmt.Fprintln(r.errOut, "error:", err)
		return
	}
	fmt.Fprintln(r.out, "ok")
}
