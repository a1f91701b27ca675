// Command kadcast-node runs a standalone Kadcast overlay node: bind an
// address, optionally join via a bootstrap peer, and broadcast whatever is
// typed at an interactive prompt.
//
// Grounded on the teacher's cmd/bootnode (a standalone P2P node CLI, same
// shape: listen address, bootstrap/NAT flags, a running process with no
// further purpose than exercising the protocol) and cmd/geth's REPL
// (peterh/liner interactive console), rebuilt over urfave/cli v1 instead of
// the stdlib flag package since that's the CLI library the teacher's go.mod
// actually carries for its multi-command tools.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/legitnull/kadcast/broadcast"
	"github.com/legitnull/kadcast/metrics"

	kadcast "github.com/legitnull/kadcast"
)

var (
	hostFlag = cli.StringFlag{
		Name:  "host",
		Value: "127.0.0.1:40000",
		Usage: "address this node binds and advertises",
	}
	bootstrapFlag = cli.StringSliceFlag{
		Name:  "b",
		Usage: "peer address to join through (repeatable)",
	}
	betaFlag = cli.IntFlag{
		Name:  "beta",
		Value: broadcast.DefaultBeta,
		Usage: "fan-out width per non-zero-height bucket",
	}
	noFECFlag = cli.BoolFlag{
		Name:  "no-fec",
		Usage: "disable FEC chunking, send broadcasts as a single datagram",
	}
	metricsFileFlag = cli.StringFlag{
		Name:  "metrics-file",
		Usage: "append a periodic JSON metrics snapshot to this file",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Value: "info",
		Usage: "log verbosity: error, warn, info, debug, trace",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "kadcast-node"
	app.Usage = "run a Kadcast overlay node"
	app.Flags = []cli.Flag{hostFlag, bootstrapFlag, betaFlag, noFECFlag, metricsFileFlag, logLevelFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("kadcast-node: %s", err))
		os.Exit(1)
	}
}

// setLogLevel maps spec §6's five named levels onto glog's own
// threshold/verbosity flags (glog has no "level" concept of its own:
// stderrthreshold gates Info/Warning/Error, -v gates V(n) debug logging).
func setLogLevel(level string) error {
	switch level {
	case "error":
		return goflag.Set("stderrthreshold", "ERROR")
	case "warn":
		return goflag.Set("stderrthreshold", "WARNING")
	case "info":
		return goflag.Set("stderrthreshold", "INFO")
	case "debug":
		if err := goflag.Set("stderrthreshold", "INFO"); err != nil {
			return err
		}
		return goflag.Set("v", "1")
	case "trace":
		if err := goflag.Set("stderrthreshold", "INFO"); err != nil {
			return err
		}
		return goflag.Set("v", "2")
	default:
		return fmt.Errorf("kadcast-node: unknown --log-level %q (want error, warn, info, debug, or trace)", level)
	}
}

func run(c *cli.Context) error {
	if err := setLogLevel(c.String(logLevelFlag.Name)); err != nil {
		return err
	}

	bootstrap := c.StringSlice(bootstrapFlag.Name)

	if mf := c.String(metricsFileFlag.Name); mf != "" {
		go metrics.Collect(mf)
	}

	listener := kadcast.NetworkListenFunc(func(message []byte, info kadcast.MessageInfo) {
		fmt.Println(color.GreenString("[recv height=%d] %s", info.Height(), string(message)))
	})

	opts := []kadcast.Option{
		kadcast.WithBeta(c.Int(betaFlag.Name)),
		kadcast.WithFEC(!c.Bool(noFECFlag.Name)),
	}

	peer, err := kadcast.NewBuilder(c.String(hostFlag.Name), bootstrap, listener, opts...).Build()
	if err != nil {
		return err
	}
	defer peer.Close()

	fmt.Println(color.CyanString("listening on %s, id=%x", peer.LocalAddr(), peer.SelfID()))

	return repl(peer)
}

func repl(peer *kadcast.Peer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("kadcast> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch {
		case input == "report":
			printReport(peer)
		case input == "quit" || input == "exit":
			return nil
		default:
			if err := peer.Broadcast(context.Background(), []byte(input), 0); err != nil {
				fmt.Println(color.RedString("broadcast failed: %s", err))
			}
		}
	}
}

func printReport(peer *kadcast.Peer) {
	snap := peer.Report()
	fmt.Printf("self: %x\n", snap.SelfID)
	for _, b := range snap.Buckets {
		fmt.Printf("  bucket %3d: %d entries\n", b.Index, len(b.Entries))
	}
}
