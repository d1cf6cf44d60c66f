package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/skillstake/skillstake/internal/prover"
	"github.com/skillstake/skillstake/pkg/pow"
)

// stopTimeout bounds how long Stop waits for in-flight calls.
const stopTimeout = 5 * time.Second

// ErrRateLimited is returned when a caller exceeds the verify rate.
var ErrRateLimited = errors.New("ipc: rate limit exceeded")

// Prover is the interface the server exposes over the socket.
// *prover.Service satisfies it.
type Prover interface {
	Wallet() (pow.PublicKey, bool)
	Mint() pow.PublicKey
	Difficulty() pow.Difficulty
	Verify(taskIDText, nonceText string) pow.VerifyResult
	Solve(ctx context.Context, taskIDText, startingNonceText string) (*pow.SolveResult, error)
	StartSolve(taskIDText, startingNonceText string) (prover.JobID, error)
	Job(id prover.JobID) (prover.JobStatus, error)
	Jobs() []prover.JobStatus
	Cancel(id prover.JobID) error
	PrepareSubmission(ctx context.Context, taskIDText, nonceText string) (*prover.Submission, error)
	RecordSubmission(ctx context.Context, sub *prover.Submission) error
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// VerifyRate is the sustained Verify calls per second. Zero disables limiting.
	VerifyRate float64
	// VerifyBurst is the limiter bucket size.
	VerifyBurst int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the IPC gRPC server.
type Server struct {
	sockPath string
	prover   Prover
	logger   *slog.Logger
	limiter  *rate.Limiter
	grpc     *grpc.Server
	listener net.Listener
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodStatus, (*Server).getStatus),
		unaryMethod(MethodVerify, (*Server).verify),
		unaryMethod(MethodSolve, (*Server).solve),
		unaryMethod(MethodStartSolve, (*Server).startSolve),
		unaryMethod(MethodJobStatus, (*Server).jobStatus),
		unaryMethod(MethodCancel, (*Server).cancel),
		unaryMethod(MethodSubmit, (*Server).submit),
	},
	Streams: []grpc.StreamDesc{},
}

// NewServer creates a new IPC server listening on a Unix socket.
func NewServer(sockPath string, p Prover, opts ServerOptions) (*Server, error) {
	// Remove existing socket if present
	os.Remove(sockPath)

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		sockPath: sockPath,
		prover:   p,
		logger:   logger.With("component", "ipc"),
		listener: listener,
	}
	if opts.VerifyRate > 0 {
		burst := opts.VerifyBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.VerifyRate), burst)
	}

	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logCalls, s.limitVerify))
	s.grpc.RegisterService(&serviceDesc, s)

	return s, nil
}

// Start begins serving requests.
func (s *Server) Start() error {
	s.logger.Info("ipc server listening", "socket", s.sockPath)
	return s.grpc.Serve(s.listener)
}

// Stop gracefully stops the server. Calls still running after stopTimeout
// are cut off.
func (s *Server) Stop() {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.logger.Warn("graceful stop timed out, closing connections", "timeout", stopTimeout)
		s.grpc.Stop()
		<-done
	}
	os.Remove(s.sockPath)
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Debug("rpc failed", "method", info.FullMethod, "code", status.Code(err), "error", err)
	} else {
		s.logger.Debug("rpc served", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

func (s *Server) limitVerify(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter != nil && info.FullMethod == fullMethod(MethodVerify) && !s.limiter.Allow() {
		return nil, status.Error(codes.ResourceExhausted, ErrRateLimited.Error())
	}
	return handler(ctx, req)
}

func (s *Server) getStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	running := 0
	for _, j := range s.prover.Jobs() {
		if j.State == prover.JobRunning {
			running++
		}
	}

	fields := map[string]any{
		fieldConnected:   false,
		fieldWallet:      "",
		fieldMint:        s.prover.Mint().String(),
		fieldDifficulty:  float64(s.prover.Difficulty()),
		fieldRunningJobs: float64(running),
	}
	if wallet, ok := s.prover.Wallet(); ok {
		fields[fieldConnected] = true
		fields[fieldWallet] = wallet.String()
	}
	return newStruct(fields)
}

func (s *Server) verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	result := s.prover.Verify(stringField(req, fieldTaskID), stringField(req, fieldNonce))
	return newStruct(map[string]any{
		fieldValid:     result.Valid,
		fieldDigestHex: result.DigestHex,
	})
}

func (s *Server) solve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	result, err := s.prover.Solve(ctx, stringField(req, fieldTaskID), stringField(req, fieldStartingNonce))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(solveResultFields(result))
}

func (s *Server) startSolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.prover.StartSolve(stringField(req, fieldTaskID), stringField(req, fieldStartingNonce))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{fieldJobID: string(id)})
}

func (s *Server) jobStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.prover.Job(prover.JobID(stringField(req, fieldJobID)))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(jobFields(st))
}

func (s *Server) cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.prover.Cancel(prover.JobID(stringField(req, fieldJobID))); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(nil)
}

func (s *Server) submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sub, err := s.prover.PrepareSubmission(ctx, stringField(req, fieldTaskID), stringField(req, fieldNonce))
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.prover.RecordSubmission(ctx, sub); err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		fieldWallet:    sub.Wallet.String(),
		fieldTaskID:    formatU64(sub.TaskID),
		fieldNonce:     formatU64(sub.Nonce),
		fieldDigestHex: sub.Digest,
	})
}

func jobFields(st prover.JobStatus) map[string]any {
	fields := map[string]any{
		fieldJobID:      string(st.ID),
		fieldTaskID:     formatU64(st.TaskID),
		fieldDifficulty: float64(st.Difficulty),
		fieldState:      st.State.String(),
		fieldIterations: formatU64(st.Iterations),
	}
	if st.Result != nil {
		for k, v := range solveResultFields(st.Result) {
			fields[k] = v
		}
	}
	if st.Err != nil {
		fields[fieldError] = st.Err.Error()
	}
	return fields
}
