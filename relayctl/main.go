// Command relayctl sends control commands to a running SmartHouse bridge.
//
//	relayctl [-addr 127.0.0.1:5000] ping
//	relayctl servo 90
//	relayctl stepper -512
//	relayctl buzzer on
//	relayctl send L1
//	relayctl < commands.txt
//
// With no arguments and a non-terminal stdin, every input line is sent as
// a raw command.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	pkgconfig "github.com/mjasion/balena-home/smarthouse/pkg/config"
	"github.com/mjasion/balena-home/smarthouse/relay"
)

func main() {
	addr := flag.String("addr", relay.DefaultAddr, "Relay address")
	timeout := flag.Duration("timeout", 5*time.Second, "Per-command timeout")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Usage = usage
	flag.Parse()

	logCfg := pkgconfig.LoggingConfig{Format: "console", Level: *logLevel}
	if err := pkgconfig.ValidateLogging(&logCfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := pkgconfig.NewLogger(&logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	client := relay.NewClient(*addr, *timeout)
	ctx := context.Background()

	if flag.NArg() == 0 && !term.IsTerminal(int(os.Stdin.Fd())) {
		if err := sendAll(ctx, client, os.Stdin, os.Stdout, logger); err != nil {
			logger.Error("Batch failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	cmd, err := buildCommand(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	if cmd == "" {
		if err := client.Ping(ctx); err != nil {
			logger.Error("Relay not reachable", zap.String("addr", *addr), zap.Error(err))
			os.Exit(1)
		}
		fmt.Println("OK")
		return
	}

	reply, err := client.Send(ctx, cmd)
	if err != nil {
		logger.Error("Command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
	logger.Debug("Command sent", zap.String("command", cmd), zap.String("reply", reply))
	fmt.Println(reply)
}

// sendAll sends every non-empty line of r and prints each reply
func sendAll(ctx context.Context, client *relay.Client, r io.Reader, w io.Writer, logger *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	sent := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reply, err := client.Send(ctx, line)
		if err != nil {
			return fmt.Errorf("after %d commands: %w", sent, err)
		}
		sent++
		fmt.Fprintf(w, "%s\t%s\n", line, reply)
	}
	logger.Debug("Batch sent", zap.Int("commands", sent))
	return scanner.Err()
}

// buildCommand maps CLI arguments to a device command. An empty command
// means ping.
func buildCommand(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing command")
	}

	switch args[0] {
	case "ping":
		return "", nil
	case "servo", "stepper":
		if len(args) != 2 {
			return "", fmt.Errorf("%s needs one integer argument", args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid %s value %q: %w", args[0], args[1], err)
		}
		if args[0] == "servo" {
			return relay.Servo(n), nil
		}
		return relay.Stepper(n), nil
	case "buzzer":
		if len(args) != 2 {
			return "", fmt.Errorf("buzzer needs on or off")
		}
		switch args[1] {
		case "on", "1":
			return relay.Buzzer(true), nil
		case "off", "0":
			return relay.Buzzer(false), nil
		}
		return "", fmt.Errorf("invalid buzzer state %q", args[1])
	case "send":
		if len(args) != 2 || args[1] == "" {
			return "", fmt.Errorf("send needs the raw command")
		}
		return args[1], nil
	default:
		return "", fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] ping|servo <angle>|stepper <steps>|buzzer on|off|send <raw>\n", os.Args[0])
	flag.PrintDefaults()
}
