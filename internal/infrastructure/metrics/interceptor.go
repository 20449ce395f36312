package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/asakaida/relgraph/internal/logging"
)

// UnaryServerInterceptor reports every unary call to recorder once the
// handler returns. Failed calls are logged at debug level with their code.
func UnaryServerInterceptor(recorder *Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		recorder.RecordCall(info.FullMethod, elapsed, err)
		if err != nil {
			logging.Debug().
				Err(err).
				Str("method", info.FullMethod).
				Stringer("code", status.Code(err)).
				Dur("duration", elapsed).
				Msg("graph call failed")
		}
		return resp, err
	}
}
