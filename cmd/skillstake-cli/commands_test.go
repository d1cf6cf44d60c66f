package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skillstake/skillstake/internal/config"
	"github.com/skillstake/skillstake/internal/ipc"
	"github.com/skillstake/skillstake/internal/prover"
	"github.com/skillstake/skillstake/internal/wallet"
	"github.com/skillstake/skillstake/pkg/pow"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

// mockProverClient is a mock implementation of ProverClient for testing.
type mockProverClient struct {
	statusFn     func() (*ipc.StatusInfo, error)
	verifyFn     func(taskID, nonce string) (pow.VerifyResult, error)
	solveFn      func(ctx context.Context, taskID, start string) (*pow.SolveResult, error)
	startSolveFn func(taskID, start string) (prover.JobID, error)
	jobFn        func(id prover.JobID) (*ipc.JobInfo, error)
	cancelFn     func(id prover.JobID) error
	submitFn     func(taskID, nonce string) (*prover.Submission, error)
	closed       bool
}

func (m *mockProverClient) Status() (*ipc.StatusInfo, error) {
	if m.statusFn != nil {
		return m.statusFn()
	}
	return nil, errors.New("Status not mocked")
}

func (m *mockProverClient) Verify(taskID, nonce string) (pow.VerifyResult, error) {
	if m.verifyFn != nil {
		return m.verifyFn(taskID, nonce)
	}
	return pow.VerifyResult{}, errors.New("Verify not mocked")
}

func (m *mockProverClient) Solve(ctx context.Context, taskID, start string) (*pow.SolveResult, error) {
	if m.solveFn != nil {
		return m.solveFn(ctx, taskID, start)
	}
	return nil, errors.New("Solve not mocked")
}

func (m *mockProverClient) StartSolve(taskID, start string) (prover.JobID, error) {
	if m.startSolveFn != nil {
		return m.startSolveFn(taskID, start)
	}
	return "", errors.New("StartSolve not mocked")
}

func (m *mockProverClient) Job(id prover.JobID) (*ipc.JobInfo, error) {
	if m.jobFn != nil {
		return m.jobFn(id)
	}
	return nil, errors.New("Job not mocked")
}

func (m *mockProverClient) Cancel(id prover.JobID) error {
	if m.cancelFn != nil {
		return m.cancelFn(id)
	}
	return errors.New("Cancel not mocked")
}

func (m *mockProverClient) Submit(taskID, nonce string) (*prover.Submission, error) {
	if m.submitFn != nil {
		return m.submitFn(taskID, nonce)
	}
	return nil, errors.New("Submit not mocked")
}

func (m *mockProverClient) Close() error {
	m.closed = true
	return nil
}

func sampleResult() *pow.SolveResult {
	return &pow.SolveResult{
		Nonce:      1234,
		DigestHex:  "0000abcd" + strings.Repeat("11", 28),
		Iterations: 1235,
		Elapsed:    42 * time.Millisecond,
	}
}

func TestCLI_Status_Success(t *testing.T) {
	mock := &mockProverClient{
		statusFn: func() (*ipc.StatusInfo, error) {
			return &ipc.StatusInfo{
				Connected:   true,
				Wallet:      "WalletAddr111",
				Mint:        config.DefaultMint,
				Difficulty:  16,
				RunningJobs: 2,
			}, nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Status(); err != nil {
		t.Fatalf("Status() returned error: %v", err)
	}

	output := out.String()
	for _, want := range []string{"running", "WalletAddr111", config.DefaultMint, "16 bits", "~65536 hashes", "Running Jobs: 2"} {
		if !strings.Contains(output, want) {
			t.Errorf("Status output missing %q, got: %s", want, output)
		}
	}
}

func TestCLI_Status_NoWallet(t *testing.T) {
	mock := &mockProverClient{
		statusFn: func() (*ipc.StatusInfo, error) {
			return &ipc.StatusInfo{Mint: config.DefaultMint}, nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Status(); err != nil {
		t.Fatalf("Status() returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Wallet: (none)") {
		t.Errorf("expected no-wallet marker, got: %s", out.String())
	}
}

func TestCLI_Status_DaemonDown(t *testing.T) {
	mock := &mockProverClient{
		statusFn: func() (*ipc.StatusInfo, error) {
			return nil, errors.New("connection refused")
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Status(); err != nil {
		t.Fatalf("Status() should report a down daemon in its output, got error: %v", err)
	}
	if !strings.Contains(out.String(), "not running") {
		t.Errorf("Status output should indicate daemon is not running, got: %s", out.String())
	}
}

func TestCLI_Solve_Success(t *testing.T) {
	var gotTask, gotStart string
	mock := &mockProverClient{
		solveFn: func(ctx context.Context, taskID, start string) (*pow.SolveResult, error) {
			gotTask, gotStart = taskID, start
			return sampleResult(), nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Solve(context.Background(), "42", "1000"); err != nil {
		t.Fatalf("Solve() returned error: %v", err)
	}
	if gotTask != "42" || gotStart != "1000" {
		t.Errorf("Solve passed (%q, %q), want (42, 1000)", gotTask, gotStart)
	}

	output := out.String()
	for _, want := range []string{"Nonce: 1234", "0000abcd", "Iterations: 1235", "42ms"} {
		if !strings.Contains(output, want) {
			t.Errorf("Solve output missing %q, got: %s", want, output)
		}
	}
}

func TestCLI_Solve_ErrorKeepsSentinel(t *testing.T) {
	mock := &mockProverClient{
		solveFn: func(ctx context.Context, taskID, start string) (*pow.SolveResult, error) {
			return nil, pow.ErrInvalidInput
		},
	}

	cli := &CLI{client: mock, output: &bytes.Buffer{}}

	err := cli.Solve(context.Background(), "x", "")
	if !errors.Is(err, pow.ErrInvalidInput) {
		t.Errorf("Solve() error = %v, want ErrInvalidInput", err)
	}
}

func TestCLI_Start_And_Job(t *testing.T) {
	mock := &mockProverClient{
		startSolveFn: func(taskID, start string) (prover.JobID, error) {
			return "job-1", nil
		},
		jobFn: func(id prover.JobID) (*ipc.JobInfo, error) {
			if id != "job-1" {
				return nil, prover.ErrJobNotFound
			}
			return &ipc.JobInfo{
				ID:         id,
				TaskID:     7,
				Difficulty: 12,
				State:      "succeeded",
				Iterations: 1235,
				Result:     sampleResult(),
			}, nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Start("7", ""); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Started job: job-1") {
		t.Errorf("Start output missing job id, got: %s", out.String())
	}

	out.Reset()
	if err := cli.Job("job-1"); err != nil {
		t.Fatalf("Job() returned error: %v", err)
	}
	for _, want := range []string{"Task: 7", "State: succeeded", "Nonce: 1234"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Job output missing %q, got: %s", want, out.String())
		}
	}

	if err := cli.Job("other"); !errors.Is(err, prover.ErrJobNotFound) {
		t.Errorf("Job(other) error = %v, want ErrJobNotFound", err)
	}
}

func TestCLI_Job_Cancelled(t *testing.T) {
	mock := &mockProverClient{
		jobFn: func(id prover.JobID) (*ipc.JobInfo, error) {
			return &ipc.JobInfo{ID: id, State: "cancelled", Error: pow.ErrCancelled.Error()}, nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Job("job-2"); err != nil {
		t.Fatalf("Job() returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Error: "+pow.ErrCancelled.Error()) {
		t.Errorf("Job output missing error, got: %s", out.String())
	}
	if strings.Contains(out.String(), "Nonce:") {
		t.Errorf("cancelled job should print no result, got: %s", out.String())
	}
}

func TestCLI_Cancel(t *testing.T) {
	var cancelled prover.JobID
	mock := &mockProverClient{
		cancelFn: func(id prover.JobID) error {
			cancelled = id
			return nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Cancel("job-3"); err != nil {
		t.Fatalf("Cancel() returned error: %v", err)
	}
	if cancelled != "job-3" {
		t.Errorf("cancelled %q, want job-3", cancelled)
	}
}

func TestCLI_Verify(t *testing.T) {
	tests := []struct {
		name   string
		result pow.VerifyResult
		want   string
	}{
		{"valid", pow.VerifyResult{Valid: true, DigestHex: "00ff"}, "Valid"},
		{"invalid", pow.VerifyResult{Valid: false, DigestHex: "ff00"}, "Invalid"},
		{"unparsable", pow.VerifyResult{}, "Invalid: inputs could not be evaluated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockProverClient{
				verifyFn: func(taskID, nonce string) (pow.VerifyResult, error) {
					return tt.result, nil
				},
			}

			var out bytes.Buffer
			cli := &CLI{client: mock, output: &out}

			if err := cli.Verify("1", "2"); err != nil {
				t.Fatalf("Verify() returned error: %v", err)
			}
			if !strings.HasPrefix(out.String(), tt.want) {
				t.Errorf("Verify output = %q, want %q", out.String(), tt.want)
			}
			if tt.result.DigestHex != "" && !strings.Contains(out.String(), tt.result.DigestHex) {
				t.Errorf("Verify output missing digest, got: %s", out.String())
			}
		})
	}
}

func TestCLI_Submit(t *testing.T) {
	var walletKey pow.PublicKey
	walletKey[0] = 1
	mock := &mockProverClient{
		submitFn: func(taskID, nonce string) (*prover.Submission, error) {
			if taskID == "5" {
				return nil, prover.ErrTaskReplay
			}
			return &prover.Submission{Wallet: walletKey, TaskID: 6, Nonce: 99, Digest: "00aa"}, nil
		},
	}

	var out bytes.Buffer
	cli := &CLI{client: mock, output: &out}

	if err := cli.Submit("6", "99"); err != nil {
		t.Fatalf("Submit() returned error: %v", err)
	}
	for _, want := range []string{"Proof accepted", walletKey.String(), "Task: 6", "Nonce: 99"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Submit output missing %q, got: %s", want, out.String())
		}
	}

	if err := cli.Submit("5", "1"); !errors.Is(err, prover.ErrTaskReplay) {
		t.Errorf("Submit() error = %v, want ErrTaskReplay", err)
	}
}

func TestCLI_Keygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")

	var out bytes.Buffer
	cli := &CLI{output: &out, passphrase: "hunter2"}

	if err := cli.Keygen(path); err != nil {
		t.Fatalf("Keygen() returned error: %v", err)
	}

	w, err := wallet.Load(path, "hunter2")
	if err != nil {
		t.Fatalf("wallet.Load() error = %v", err)
	}
	if !strings.Contains(out.String(), w.Address()) {
		t.Errorf("Keygen output missing address %s, got: %s", w.Address(), out.String())
	}
	if !strings.Contains(out.String(), "Recovery phrase") {
		t.Errorf("Keygen output missing recovery phrase, got: %s", out.String())
	}

	if err := cli.Keygen(path); !errors.Is(err, ErrKeystoreExists) {
		t.Errorf("second Keygen() error = %v, want ErrKeystoreExists", err)
	}
}

func TestCLI_Keygen_RequiresPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")
	cli := &CLI{output: &bytes.Buffer{}}

	if err := cli.Keygen(path); !errors.Is(err, ErrMissingPassphrase) {
		t.Errorf("Keygen() error = %v, want ErrMissingPassphrase", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no keystore should be written without a passphrase")
	}
}

func TestCLI_Recover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")

	var out bytes.Buffer
	cli := &CLI{
		output:     &out,
		input:      strings.NewReader("  " + testMnemonic + "  \n"),
		passphrase: "hunter2",
	}

	if err := cli.Recover(path); err != nil {
		t.Fatalf("Recover() returned error: %v", err)
	}

	want, err := wallet.FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := wallet.Load(path, "hunter2")
	if err != nil {
		t.Fatalf("wallet.Load() error = %v", err)
	}
	if got.PublicKey != want.PublicKey {
		t.Errorf("recovered %s, want %s", got.Address(), want.Address())
	}
}

func TestCLI_Recover_InvalidPhrase(t *testing.T) {
	cli := &CLI{
		output:     &bytes.Buffer{},
		input:      strings.NewReader("not a real phrase"),
		passphrase: "hunter2",
	}

	err := cli.Recover(filepath.Join(t.TempDir(), "wallet.key"))
	if !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("Recover() error = %v, want ErrInvalidMnemonic", err)
	}
}

func TestCLI_Close(t *testing.T) {
	mock := &mockProverClient{}
	cli := &CLI{client: mock}
	cli.Close()
	if !mock.closed {
		t.Error("Close() should close the client")
	}

	// Closing without a client is a no-op.
	(&CLI{}).Close()
}

func TestNewCLI(t *testing.T) {
	cli := NewCLI("/tmp/prover.sock")
	if cli.socket != "/tmp/prover.sock" {
		t.Errorf("socket = %q", cli.socket)
	}
	if cli.output == nil || cli.input == nil {
		t.Error("NewCLI should default output and input")
	}
}

func TestCLI_ConnectEmptySocket(t *testing.T) {
	cli := &CLI{output: &bytes.Buffer{}}
	if err := cli.Verify("1", "1"); !errors.Is(err, ipc.ErrEmptySocketPath) {
		t.Errorf("Verify() error = %v, want ErrEmptySocketPath", err)
	}
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	printUsageTo(&out)

	for cmd := range usageLine {
		if !strings.Contains(out.String(), cmd) {
			t.Errorf("usage missing command %q", cmd)
		}
	}
	if !strings.Contains(out.String(), config.EnvPassphrase) {
		t.Errorf("usage should mention %s", config.EnvPassphrase)
	}
}
