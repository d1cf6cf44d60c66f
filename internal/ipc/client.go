package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/skillstake/skillstake/internal/prover"
	"github.com/skillstake/skillstake/pkg/pow"
)

// defaultRPCTimeout is the default timeout for RPC calls.
const defaultRPCTimeout = 5 * time.Second

// ErrEmptySocketPath is returned when an empty socket path is provided.
var ErrEmptySocketPath = errors.New("socket path cannot be empty")

// StatusInfo describes the prover daemon's session.
type StatusInfo struct {
	Connected   bool
	Wallet      string
	Mint        string
	Difficulty  pow.Difficulty
	RunningJobs int
}

// JobInfo describes a background solve.
type JobInfo struct {
	ID         prover.JobID
	TaskID     uint64
	Difficulty pow.Difficulty
	State      string
	Iterations uint64
	// Result is set once State is "succeeded".
	Result *pow.SolveResult
	// Error is set when the job was cancelled or failed.
	Error string
}

// Client is the IPC client for the prover daemon.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client that connects to the prover daemon via a Unix
// socket at the specified path.
func NewClient(sockPath string) (*Client, error) {
	if sockPath == "" {
		return nil, ErrEmptySocketPath
	}

	conn, err := grpc.Dial(
		"unix://"+sockPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC socket: %w", err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return nil, fromStatus(method, err)
	}
	return resp, nil
}

func (c *Client) invokeWithTimeout(method string, fields map[string]any) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRPCTimeout)
	defer cancel()
	return c.invoke(ctx, method, fields)
}

// Status retrieves the daemon's wallet, mint and difficulty.
func (c *Client) Status() (*StatusInfo, error) {
	resp, err := c.invokeWithTimeout(MethodStatus, nil)
	if err != nil {
		return nil, err
	}
	return &StatusInfo{
		Connected:   boolField(resp, fieldConnected),
		Wallet:      stringField(resp, fieldWallet),
		Mint:        stringField(resp, fieldMint),
		Difficulty:  pow.Difficulty(numberField(resp, fieldDifficulty)),
		RunningJobs: int(numberField(resp, fieldRunningJobs)),
	}, nil
}

// Verify asks the daemon whether nonce solves taskID at its current
// difficulty. The inputs are passed through unparsed.
func (c *Client) Verify(taskID, nonce string) (pow.VerifyResult, error) {
	resp, err := c.invokeWithTimeout(MethodVerify, map[string]any{
		fieldTaskID: taskID,
		fieldNonce:  nonce,
	})
	if err != nil {
		return pow.VerifyResult{}, err
	}
	return pow.VerifyResult{
		Valid:     boolField(resp, fieldValid),
		DigestHex: stringField(resp, fieldDigestHex),
	}, nil
}

// Solve runs a search on the daemon and blocks until it finishes.
// There is no default timeout; cancel ctx to stop the search.
func (c *Client) Solve(ctx context.Context, taskID, startingNonce string) (*pow.SolveResult, error) {
	resp, err := c.invoke(ctx, MethodSolve, map[string]any{
		fieldTaskID:        taskID,
		fieldStartingNonce: startingNonce,
	})
	if err != nil {
		return nil, err
	}
	return decodeSolveResult(resp)
}

// StartSolve starts a background search and returns its job id.
func (c *Client) StartSolve(taskID, startingNonce string) (prover.JobID, error) {
	resp, err := c.invokeWithTimeout(MethodStartSolve, map[string]any{
		fieldTaskID:        taskID,
		fieldStartingNonce: startingNonce,
	})
	if err != nil {
		return "", err
	}
	return prover.JobID(stringField(resp, fieldJobID)), nil
}

// Job retrieves the state of a background search.
func (c *Client) Job(id prover.JobID) (*JobInfo, error) {
	resp, err := c.invokeWithTimeout(MethodJobStatus, map[string]any{fieldJobID: string(id)})
	if err != nil {
		return nil, err
	}

	info := &JobInfo{
		ID:         prover.JobID(stringField(resp, fieldJobID)),
		Difficulty: pow.Difficulty(numberField(resp, fieldDifficulty)),
		State:      stringField(resp, fieldState),
		Error:      stringField(resp, fieldError),
	}
	if info.TaskID, err = u64Field(resp, fieldTaskID); err != nil {
		return nil, fmt.Errorf("%s: %w", MethodJobStatus, err)
	}
	if info.Iterations, err = u64Field(resp, fieldIterations); err != nil {
		return nil, fmt.Errorf("%s: %w", MethodJobStatus, err)
	}
	if info.State == prover.JobSucceeded.String() {
		if info.Result, err = decodeSolveResult(resp); err != nil {
			return nil, fmt.Errorf("%s: %w", MethodJobStatus, err)
		}
	}
	return info, nil
}

// Cancel stops a background search.
func (c *Client) Cancel(id prover.JobID) error {
	_, err := c.invokeWithTimeout(MethodCancel, map[string]any{fieldJobID: string(id)})
	return err
}

// Submit re-verifies a proof on the daemon and records it in the task ledger.
func (c *Client) Submit(taskID, nonce string) (*prover.Submission, error) {
	resp, err := c.invokeWithTimeout(MethodSubmit, map[string]any{
		fieldTaskID: taskID,
		fieldNonce:  nonce,
	})
	if err != nil {
		return nil, err
	}

	sub := &prover.Submission{Digest: stringField(resp, fieldDigestHex)}
	if sub.Wallet, err = pow.ParsePublicKey(stringField(resp, fieldWallet)); err != nil {
		return nil, fmt.Errorf("%s: field %s: %w", MethodSubmit, fieldWallet, err)
	}
	if sub.TaskID, err = u64Field(resp, fieldTaskID); err != nil {
		return nil, fmt.Errorf("%s: %w", MethodSubmit, err)
	}
	if sub.Nonce, err = u64Field(resp, fieldNonce); err != nil {
		return nil, fmt.Errorf("%s: %w", MethodSubmit, err)
	}
	return sub, nil
}
