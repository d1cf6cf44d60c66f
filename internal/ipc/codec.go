package ipc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/skillstake/skillstake/internal/prover"
	"github.com/skillstake/skillstake/pkg/pow"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "skillstake.prover.v1.Prover"

// Method names.
const (
	MethodStatus     = "Status"
	MethodVerify     = "Verify"
	MethodSolve      = "Solve"
	MethodStartSolve = "StartSolve"
	MethodJobStatus  = "JobStatus"
	MethodCancel     = "Cancel"
	MethodSubmit     = "Submit"
)

// Message field names. 64-bit integers travel as decimal strings because
// structpb numbers are float64.
const (
	fieldTaskID        = "task_id"
	fieldNonce         = "nonce"
	fieldStartingNonce = "starting_nonce"
	fieldValid         = "valid"
	fieldDigestHex     = "digest_hex"
	fieldIterations    = "iterations"
	fieldElapsedMs     = "elapsed_ms"
	fieldJobID         = "job_id"
	fieldState         = "state"
	fieldDifficulty    = "difficulty"
	fieldError         = "error"
	fieldWallet        = "wallet"
	fieldConnected     = "connected"
	fieldMint          = "mint"
	fieldRunningJobs   = "running_jobs"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// rpcMethod handles one unary call.
type rpcMethod func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unaryMethod adapts an rpcMethod to the grpc handler signature.
func unaryMethod(name string, m rpcMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return m(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return m(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string) bool {
	if s == nil {
		return false
	}
	return s.GetFields()[key].GetBoolValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	if s == nil {
		return 0
	}
	return s.GetFields()[key].GetNumberValue()
}

// u64Field parses a decimal string field. A missing field is an error.
func u64Field(s *structpb.Struct, key string) (uint64, error) {
	v, err := pow.ParseU64(stringField(s, key))
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return v, nil
}

func formatU64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func solveResultFields(r *pow.SolveResult) map[string]any {
	return map[string]any{
		fieldNonce:      formatU64(r.Nonce),
		fieldDigestHex:  r.DigestHex,
		fieldIterations: formatU64(r.Iterations),
		fieldElapsedMs:  float64(r.Elapsed.Microseconds()) / 1000,
	}
}

func decodeSolveResult(s *structpb.Struct) (*pow.SolveResult, error) {
	nonce, err := u64Field(s, fieldNonce)
	if err != nil {
		return nil, err
	}
	iterations, err := u64Field(s, fieldIterations)
	if err != nil {
		return nil, err
	}
	digestHex := stringField(s, fieldDigestHex)
	raw, err := hex.DecodeString(digestHex)
	if err != nil || len(raw) != pow.DigestSize {
		return nil, fmt.Errorf("field %s: malformed digest %q", fieldDigestHex, digestHex)
	}

	r := &pow.SolveResult{
		Nonce:      nonce,
		DigestHex:  digestHex,
		Iterations: iterations,
		Elapsed:    time.Duration(numberField(s, fieldElapsedMs) * float64(time.Millisecond)),
	}
	copy(r.Digest[:], raw)
	return r, nil
}

// statusCodes maps service errors to gRPC codes. Unlisted errors are Internal.
var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{pow.ErrInvalidInput, codes.InvalidArgument},
	{pow.ErrPreconditionFailed, codes.FailedPrecondition},
	{pow.ErrCancelled, codes.Canceled},
	{pow.ErrExhausted, codes.OutOfRange},
	{prover.ErrProofInvalid, codes.InvalidArgument},
	{prover.ErrTaskReplay, codes.AlreadyExists},
	{prover.ErrJobNotFound, codes.NotFound},
	{prover.ErrClosed, codes.Unavailable},
}

// toStatus converts a service error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return status.Error(sc.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps a gRPC status back onto the matching service error so
// callers can use errors.Is on the client side.
func fromStatus(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s RPC failed: %w", method, err)
	}
	var sentinel error
	switch st.Code() {
	case codes.InvalidArgument:
		sentinel = pow.ErrInvalidInput
		if strings.HasPrefix(st.Message(), prover.ErrProofInvalid.Error()) {
			sentinel = prover.ErrProofInvalid
		}
	case codes.FailedPrecondition:
		sentinel = pow.ErrPreconditionFailed
	case codes.Canceled:
		sentinel = pow.ErrCancelled
	case codes.OutOfRange:
		sentinel = pow.ErrExhausted
	case codes.ResourceExhausted:
		sentinel = ErrRateLimited
	case codes.AlreadyExists:
		sentinel = prover.ErrTaskReplay
	case codes.NotFound:
		sentinel = prover.ErrJobNotFound
	default:
		return fmt.Errorf("%s RPC failed: %w", method, err)
	}
	return fmt.Errorf("%s RPC failed: %w: %s", method, sentinel, st.Message())
}
