package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// usageLine maps each command to its argument synopsis.
var usageLine = map[string]string{
	"solve":   "solve <task> [starting-nonce]",
	"start":   "start <task> [starting-nonce]",
	"job":     "job <id>",
	"cancel":  "cancel <id>",
	"verify":  "verify <task> <nonce>",
	"submit":  "submit <task> <nonce>",
	"keygen":  "keygen <path>",
	"recover": "recover <path>",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := NewCLIWithDefaults()
	defer cli.Close()

	cmd, args := os.Args[1], os.Args[2:]
	var err error

	switch cmd {
	case "status":
		err = cli.Status()
	case "solve":
		requireArgs(cmd, args, 1)
		err = cli.Solve(ctx, args[0], optionalArg(args, 1))
	case "start":
		requireArgs(cmd, args, 1)
		err = cli.Start(args[0], optionalArg(args, 1))
	case "job":
		requireArgs(cmd, args, 1)
		err = cli.Job(args[0])
	case "cancel":
		requireArgs(cmd, args, 1)
		err = cli.Cancel(args[0])
	case "verify":
		requireArgs(cmd, args, 2)
		err = cli.Verify(args[0], args[1])
	case "submit":
		requireArgs(cmd, args, 2)
		err = cli.Submit(args[0], args[1])
	case "keygen":
		requireArgs(cmd, args, 1)
		err = cli.Keygen(args[0])
	case "recover":
		requireArgs(cmd, args, 1)
		err = cli.Recover(args[0])
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func requireArgs(cmd string, args []string, n int) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "Usage: skillstake-cli %s\n", usageLine[cmd])
		os.Exit(1)
	}
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
