// Package server exposes the operational gRPC endpoint: the standard health
// service and reflection, nothing chat related.
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health key reported for the chat relay.
const ServiceName = "chat-relay"

type OpsServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

// NewOpsServer starts NOT_SERVING. The caller flips it once startup
// reconciliation is done.
func NewOpsServer(log *slog.Logger) *OpsServer {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(log),
		))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	ops := &OpsServer{log: log, server: s, health: h}
	ops.SetServing(false)
	return ops
}

func (o *OpsServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	o.health.SetServingStatus("", status)
	o.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until Stop. A stopped server is not an error.
func (o *OpsServer) Serve(listener net.Listener) error {
	for serviceName := range o.server.GetServiceInfo() {
		o.log.Debug("gRPC exposed service", "name", serviceName)
	}
	if err := o.server.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop reports NOT_SERVING to watchers then drains in-flight calls, or
// stops hard once ctx is done.
func (o *OpsServer) Stop(ctx context.Context) {
	o.health.Shutdown()

	done := make(chan struct{})
	go func() {
		o.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.server.Stop()
	}
}
