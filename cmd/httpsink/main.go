package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/honeycombio/loggen/internal/receiver"
	"github.com/jessevdk/go-flags"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
)

// Options defines the command line arguments
type Options struct {
	Port           int           `long:"port" description:"Port number to listen on for HTTP" default:"4318"`
	ReportInterval time.Duration `long:"reportinterval" description:"how often to log the receive rate" default:"5s"`
	Capacity       uint          `long:"capacity" description:"capacity of the distinct-body filter" default:"10000000"`
}

// maximum request size we'll accept, both on the wire and decompressed
const maxBodySize = 64 * 1024 * 1024

// LogServer accepts OTLP/HTTP log exports.
type LogServer struct {
	counter *receiver.LogCounter
	log     *zap.SugaredLogger
	maxBody int64
}

func NewLogServer(counter *receiver.LogCounter, log *zap.SugaredLogger) *LogServer {
	return &LogServer{counter: counter, log: log, maxBody: maxBodySize}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func decompress(r *http.Request) (io.ReadCloser, error) {
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case "zstd":
		dec, err := zstd.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return io.NopCloser(r.Body), nil
	}
}

// ServeHTTP handles POST /v1/logs with protobuf or JSON bodies.
func (s *LogServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	reader, err := decompress(r)
	if err != nil {
		if tooLarge(err) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to decompress data: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer reader.Close()
	// one byte over the limit is enough to know the decompressed body is too big
	body, err := io.ReadAll(io.LimitReader(reader, s.maxBody+1))
	if err != nil {
		if tooLarge(err) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.maxBody {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var logsReq collectorlogs.ExportLogsServiceRequest
	isJSON := r.Header.Get("Content-Type") == "application/json"
	if isJSON {
		err = protojson.Unmarshal(body, &logsReq)
	} else {
		// default to protobuf if the content type is anything else
		err = proto.Unmarshal(body, &logsReq)
	}
	if err != nil {
		http.Error(w, "Invalid request data", http.StatusBadRequest)
		return
	}

	n := s.counter.Process(&logsReq)
	s.log.Debugf("received %d records", n)

	resp := &collectorlogs.ExportLogsServiceResponse{}
	var out []byte
	if isJSON {
		w.Header().Set("Content-Type", "application/json")
		out, err = protojson.Marshal(resp)
	} else {
		w.Header().Set("Content-Type", "application/x-protobuf")
		out, err = proto.Marshal(resp)
	}
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func initHTTPReceiver(ctx context.Context, opts Options, ls *LogServer, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/v1/logs", ls)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: mux,
	}

	go func() {
		log.Infof("HTTP server listening on port %d", opts.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info("Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error during server shutdown: %v", err)
		}
	}()
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
	initHTTPReceiver(ctx, opts, NewLogServer(counter, log), log)

	<-ctx.Done()

	records, distinct, requests := counter.Counts()
	summary := counter.Rates().Summary()
	fmt.Printf("\n%d records (%d distinct bodies) in %d requests received this session, %.0f records/sec average\n",
		records, distinct, requests, summary.AverageRate)
	log.Info("Shutting down gracefully...")
}
