package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/skillstake/skillstake/internal/config"
	"github.com/skillstake/skillstake/internal/ipc"
	"github.com/skillstake/skillstake/internal/prover"
	"github.com/skillstake/skillstake/internal/wallet"
	"github.com/skillstake/skillstake/pkg/pow"
)

// ErrMissingPassphrase is returned when keygen runs without a passphrase.
var ErrMissingPassphrase = errors.New("set " + config.EnvPassphrase + " to encrypt the keystore")

// ErrKeystoreExists is returned instead of overwriting a keystore.
var ErrKeystoreExists = errors.New("keystore already exists")

// ProverClient is the subset of ipc.Client the CLI uses.
type ProverClient interface {
	Status() (*ipc.StatusInfo, error)
	Verify(taskID, nonce string) (pow.VerifyResult, error)
	Solve(ctx context.Context, taskID, startingNonce string) (*pow.SolveResult, error)
	StartSolve(taskID, startingNonce string) (prover.JobID, error)
	Job(id prover.JobID) (*ipc.JobInfo, error)
	Cancel(id prover.JobID) error
	Submit(taskID, nonce string) (*prover.Submission, error)
	Close() error
}

// CLI provides commands for interacting with the prover daemon.
type CLI struct {
	socket     string
	client     ProverClient
	output     io.Writer
	input      io.Reader
	passphrase string
}

// NewCLI creates a CLI that connects to the daemon via a Unix socket.
func NewCLI(socket string) *CLI {
	return &CLI{
		socket:     socket,
		output:     os.Stdout,
		input:      os.Stdin,
		passphrase: os.Getenv(config.EnvPassphrase),
	}
}

// NewCLIWithDefaults creates a CLI using the default socket path.
func NewCLIWithDefaults() *CLI {
	return NewCLI(config.DefaultPaths().ProverSocket)
}

// connect establishes a connection to the daemon.
func (c *CLI) connect() error {
	if c.client != nil {
		return nil
	}

	client, err := ipc.NewClient(c.socket)
	if err != nil {
		return fmt.Errorf("failed to connect to prover daemon: %w", err)
	}
	c.client = client
	return nil
}

// Close closes the daemon connection.
func (c *CLI) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Status displays the daemon's session.
func (c *CLI) Status() error {
	fmt.Fprintln(c.output, "=== Skillstake Prover ===")
	fmt.Fprintln(c.output)

	if err := c.connect(); err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}

	st, err := c.client.Status()
	if err != nil {
		fmt.Fprintf(c.output, "  Status: not running\n")
		fmt.Fprintf(c.output, "  Error: %v\n", err)
		return nil
	}

	addr := st.Wallet
	if !st.Connected {
		addr = "(none)"
	}
	fmt.Fprintf(c.output, "  Status: running\n")
	fmt.Fprintf(c.output, "  Wallet: %s\n", addr)
	fmt.Fprintf(c.output, "  Mint: %s\n", st.Mint)
	fmt.Fprintf(c.output, "  Difficulty: %d bits (~%.0f hashes)\n", st.Difficulty, st.Difficulty.ExpectedIterations())
	fmt.Fprintf(c.output, "  Running Jobs: %d\n", st.RunningJobs)
	return nil
}

// Solve searches in the foreground until a nonce is found or ctx is done.
func (c *CLI) Solve(ctx context.Context, taskID, startingNonce string) error {
	if err := c.connect(); err != nil {
		return err
	}

	result, err := c.client.Solve(ctx, taskID, startingNonce)
	if err != nil {
		return fmt.Errorf("solve failed: %w", err)
	}

	c.printResult(result)
	return nil
}

// Start launches a background search and prints its job id.
func (c *CLI) Start(taskID, startingNonce string) error {
	if err := c.connect(); err != nil {
		return err
	}

	id, err := c.client.StartSolve(taskID, startingNonce)
	if err != nil {
		return fmt.Errorf("failed to start solve: %w", err)
	}

	fmt.Fprintf(c.output, "Started job: %s\n", id)
	return nil
}

// Job displays the state of a background search.
func (c *CLI) Job(id string) error {
	if err := c.connect(); err != nil {
		return err
	}

	info, err := c.client.Job(prover.JobID(id))
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	fmt.Fprintf(c.output, "Job: %s\n", info.ID)
	fmt.Fprintf(c.output, "  Task: %d\n", info.TaskID)
	fmt.Fprintf(c.output, "  Difficulty: %d\n", info.Difficulty)
	fmt.Fprintf(c.output, "  State: %s\n", info.State)
	fmt.Fprintf(c.output, "  Iterations: %d\n", info.Iterations)
	if info.Error != "" {
		fmt.Fprintf(c.output, "  Error: %s\n", info.Error)
	}
	if info.Result != nil {
		c.printResult(info.Result)
	}
	return nil
}

// Cancel stops a background search.
func (c *CLI) Cancel(id string) error {
	if err := c.connect(); err != nil {
		return err
	}

	if err := c.client.Cancel(prover.JobID(id)); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	fmt.Fprintf(c.output, "Cancelled job: %s\n", id)
	return nil
}

// Verify checks a nonce against the daemon's wallet and difficulty.
func (c *CLI) Verify(taskID, nonce string) error {
	if err := c.connect(); err != nil {
		return err
	}

	result, err := c.client.Verify(taskID, nonce)
	if err != nil {
		return fmt.Errorf("failed to verify: %w", err)
	}

	if result.DigestHex == "" {
		fmt.Fprintln(c.output, "Invalid: inputs could not be evaluated")
		return nil
	}
	verdict := "Invalid"
	if result.Valid {
		verdict = "Valid"
	}
	fmt.Fprintf(c.output, "%s\n", verdict)
	fmt.Fprintf(c.output, "  Digest: %s\n", result.DigestHex)
	return nil
}

// Submit re-verifies a proof and records it in the daemon's task ledger.
func (c *CLI) Submit(taskID, nonce string) error {
	if err := c.connect(); err != nil {
		return err
	}

	sub, err := c.client.Submit(taskID, nonce)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	fmt.Fprintln(c.output, "Proof accepted")
	fmt.Fprintf(c.output, "  Wallet: %s\n", sub.Wallet)
	fmt.Fprintf(c.output, "  Task: %d\n", sub.TaskID)
	fmt.Fprintf(c.output, "  Nonce: %d\n", sub.Nonce)
	fmt.Fprintf(c.output, "  Digest: %s\n", sub.Digest)
	return nil
}

// Keygen creates a wallet, encrypts it to path and prints its recovery phrase.
func (c *CLI) Keygen(path string) error {
	if err := c.checkKeystoreTarget(path); err != nil {
		return err
	}

	w, mnemonic, err := wallet.NewWithMnemonic()
	if err != nil {
		return fmt.Errorf("failed to generate wallet: %w", err)
	}
	if err := wallet.Save(w, path, c.passphrase); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "Wallet: %s\n", w.Address())
	fmt.Fprintf(c.output, "Keystore: %s\n", path)
	fmt.Fprintln(c.output)
	fmt.Fprintln(c.output, "Recovery phrase (write it down, it is not stored):")
	fmt.Fprintf(c.output, "  %s\n", mnemonic)
	return nil
}

// Recover reads a recovery phrase from input and writes the wallet to path.
func (c *CLI) Recover(path string) error {
	if err := c.checkKeystoreTarget(path); err != nil {
		return err
	}

	fmt.Fprint(c.output, "Recovery phrase: ")
	line, err := bufio.NewReader(c.input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read recovery phrase: %w", err)
	}
	fmt.Fprintln(c.output)

	w, err := wallet.FromMnemonic(strings.Join(strings.Fields(line), " "), "")
	if err != nil {
		return err
	}
	if err := wallet.Save(w, path, c.passphrase); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "Wallet: %s\n", w.Address())
	fmt.Fprintf(c.output, "Keystore: %s\n", path)
	return nil
}

func (c *CLI) checkKeystoreTarget(path string) error {
	if c.passphrase == "" {
		return ErrMissingPassphrase
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeystoreExists, path)
	}
	return nil
}

func (c *CLI) printResult(r *pow.SolveResult) {
	fmt.Fprintf(c.output, "Nonce: %d\n", r.Nonce)
	fmt.Fprintf(c.output, "  Digest: %s\n", r.DigestHex)
	fmt.Fprintf(c.output, "  Iterations: %d\n", r.Iterations)
	fmt.Fprintf(c.output, "  Elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
}

// printUsage prints the CLI usage information to stdout.
func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo prints the CLI usage information to the given writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, "Usage: skillstake-cli <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status                   Show prover daemon status")
	fmt.Fprintln(w, "  solve <task> [nonce]     Search for a proof and wait for it")
	fmt.Fprintln(w, "  start <task> [nonce]     Start a background search")
	fmt.Fprintln(w, "  job <id>                 Show a background search")
	fmt.Fprintln(w, "  cancel <id>              Stop a background search")
	fmt.Fprintln(w, "  verify <task> <nonce>    Check a proof")
	fmt.Fprintln(w, "  submit <task> <nonce>    Check a proof and record it")
	fmt.Fprintln(w, "  keygen <path>            Create an encrypted wallet keystore")
	fmt.Fprintln(w, "  recover <path>           Restore a keystore from a recovery phrase")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Keystore commands read the passphrase from %s.\n", config.EnvPassphrase)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  skillstake-cli solve 42")
	fmt.Fprintln(w, "  skillstake-cli start 43 1000000")
	fmt.Fprintln(w, "  skillstake-cli verify 42 18446744073709551615")
}
