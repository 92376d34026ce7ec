package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/loggen/internal/receiver"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
)

// Options defines the command line arguments
type Options struct {
	Port           int           `long:"port" description:"Port number to listen on for grpc" default:"4317"`
	ReportInterval time.Duration `long:"reportinterval" description:"how often to log the receive rate" default:"5s"`
	Capacity       uint          `long:"capacity" description:"capacity of the distinct-body filter" default:"10000000"`
}

const (
	// Default values for gRPC configuration
	DefaultMaxSendMsgSize        = 4 * 1024 * 1024  // 4 MB
	DefaultMaxRecvMsgSize        = 15 * 1024 * 1024 // 15 MB
	DefaultMaxConnectionIdle     = 30 * time.Minute
	DefaultMaxConnectionAge      = time.Hour
	DefaultMaxConnectionAgeGrace = 5 * time.Minute
	DefaultKeepAlive             = 2 * time.Minute
	DefaultKeepAliveTimeout      = 20 * time.Second
)

// LogServer implements the OTLP LogsService and counts what it receives.
type LogServer struct {
	counter *receiver.LogCounter
	collectorlogs.UnimplementedLogsServiceServer
}

func NewLogServer(counter *receiver.LogCounter) *LogServer {
	return &LogServer{counter: counter}
}

func (s *LogServer) Export(ctx context.Context, req *collectorlogs.ExportLogsServiceRequest) (*collectorlogs.ExportLogsServiceResponse, error) {
	s.counter.Process(req)
	return &collectorlogs.ExportLogsServiceResponse{}, nil
}

// initGRPCReceiver starts a logs server on localhost and stops it when ctx is done.
func initGRPCReceiver(ctx context.Context, opts Options, ls *LogServer, log *zap.SugaredLogger) error {
	addr := fmt.Sprintf("localhost:%d", opts.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	serverOpts := []grpc.ServerOption{
		grpc.MaxSendMsgSize(DefaultMaxSendMsgSize),
		grpc.MaxRecvMsgSize(DefaultMaxRecvMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     DefaultMaxConnectionIdle,
			MaxConnectionAge:      DefaultMaxConnectionAge,
			MaxConnectionAgeGrace: DefaultMaxConnectionAgeGrace,
			Time:                  DefaultKeepAlive,
			Timeout:               DefaultKeepAliveTimeout,
		}),
	}
	srv := grpc.NewServer(serverOpts...)
	collectorlogs.RegisterLogsServiceServer(srv, ls)

	go func() {
		log.Infof("gRPC server listening on %s", addr)
		if err := srv.Serve(lis); err != nil {
			log.Errorf("gRPC server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info("Stopping gRPC server...")
		srv.GracefulStop()
	}()

	return nil
}

func main() {
	var opts Options

	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counter := receiver.NewLogCounter(opts.Capacity, opts.ReportInterval, log.Infof)
	if err := initGRPCReceiver(ctx, opts, NewLogServer(counter), log); err != nil {
		log.Fatalf("Failed to start gRPC receiver: %v", err)
	}

	<-ctx.Done()

	records, distinct, requests := counter.Counts()
	summary := counter.Rates().Summary()
	fmt.Printf("\n%d records (%d distinct bodies) in %d requests received this session, %.0f records/sec average\n",
		records, distinct, requests, summary.AverageRate)
	log.Info("Shutting down gracefully...")
}
