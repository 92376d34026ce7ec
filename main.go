package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/goware/urlx"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ResourceLibrary = "loggen"
var ResourceVersion = "dev"

type Options struct {
	Telemetry struct {
		Host     string `long:"host" description:"the url of the host to receive the records (or honeycomb, dogfood, local); honeycomb and otel senders only" default:"local"`
		Insecure bool   `long:"insecure" description:"use this for insecure http (not https) connections" yaml:",omitempty"`
		Dataset  string `long:"dataset" description:"sends all records to the given dataset (also the otel service name)" env:"HONEYCOMB_DATASET" default:"loggen"`
		APIKey   string `long:"apikey" description:"the honeycomb API key(*)" env:"HONEYCOMB_API_KEY" yaml:"-"`
	} `group:"Telemetry Options"`
	Format struct {
		Extra int `long:"extra" description:"the number of random fields added to each record beyond the standard ones" default:"0" yaml:",omitempty"`
	} `group:"Record Format Options"`
	Quantity struct {
		Mode            string        `long:"mode" description:"stream: continuous workers with a progress monitor; burst: fixed-size batches on a pool" choice:"stream" choice:"burst" default:"stream"`
		Workers         int           `long:"workers" description:"number of concurrent emitter workers" default:"1"`
		Target          int64         `long:"target" description:"records each worker sends before stopping (0 means no limit)" default:"0" yaml:",omitempty"`
		Rate            float64       `long:"rate" description:"maximum records per second per worker (0 means as fast as possible)" default:"0" yaml:",omitempty"`
		RunTime         time.Duration `long:"runtime" description:"stop after this long (0 means run until interrupted)" default:"0s" yaml:",omitempty"`
		WarmUp          int           `long:"warmup" description:"records sent synchronously before the measured run" default:"10000"`
		Settle          time.Duration `long:"settle" description:"pause between warm-up and the measured run" default:"2s"`
		Interval        time.Duration `long:"interval" description:"how often to report the current rate" default:"10s"`
		YieldEvery      int64         `long:"yieldevery" description:"records between scheduler yields in each worker (0 never yields)" default:"1000"`
		ShutdownTimeout time.Duration `long:"shutdowntimeout" description:"how long to wait for workers to stop before reporting" default:"5s"`
	} `group:"Quantity Options"`
	Burst struct {
		Total      int           `long:"bursttotal" description:"total records to send in burst mode" default:"1000000"`
		Size       int           `long:"burstsize" description:"records per batch in burst mode" default:"1000"`
		Pool       int           `long:"burstpool" description:"maximum batches in flight in burst mode" default:"8"`
		PauseEvery int           `long:"pauseevery" description:"pause after every this many batch dispatches" default:"10"`
		Pause      time.Duration `long:"pause" description:"how long to pause between dispatch groups" default:"1ms"`
	} `group:"Burst Options"`
	Output struct {
		Sender             string        `long:"sender" description:"type of sender" choice:"zap" choice:"logrus" choice:"print" choice:"dummy" choice:"honeycomb" choice:"otel" choice:"redis" default:"zap"`
		File               string        `long:"file" description:"for zap, logrus and print, write records to this file instead of stdout" yaml:",omitempty"`
		Protocol           string        `long:"protocol" description:"for otel only, protocol to use" choice:"grpc" choice:"http" default:"grpc"`
		MaxQueueSize       int           `long:"maxqueuesize" description:"for otel only, maximum number of records to queue before dropping" default:"0" yaml:",omitempty"`
		MaxExportBatchSize int           `long:"maxexportbatchsize" description:"for otel only, maximum number of records to export at once" default:"0" yaml:",omitempty"`
		BatchTimeout       time.Duration `long:"batchtimeout" description:"for otel only, maximum time to wait before sending a batch" default:"0s" yaml:",omitempty"`
		ExportTimeout      time.Duration `long:"exporttimeout" description:"for otel only, maximum time to wait for a batch to be sent" default:"0s" yaml:",omitempty"`
		RedisAddr          string        `long:"redisaddr" description:"for redis only, host:port of the redis server" default:"localhost:6379"`
		RedisPassword      string        `long:"redispassword" description:"for redis only, the redis password(*)" env:"REDIS_PASSWORD" yaml:"-"`
		RedisKey           string        `long:"rediskey" description:"for redis only, the list records are pushed onto" default:"logstash"`
		RedisBatch         int           `long:"redisbatch" description:"for redis only, records per RPUSH" default:"500"`
	} `group:"Output Options"`
	Global struct {
		LogLevel  string `long:"loglevel" description:"level of logging" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"warn"`
		DebugPort int    `long:"debugport" description:"port to listen on for pprof and /metrics(*)" default:"-1" yaml:"-"`
		Seed      string `long:"seed" description:"string seed for random field generation (defaults to dataset name)" yaml:",omitempty"`
		Config    string `long:"config" description:"name of config file to load(*)" default:"" yaml:"-"`
		WriteCfg  string `long:"writecfg" description:"write effective YAML config to the specified output file and quit(*)" default:"" yaml:"-"`
	} `group:"Global Options"`
	Fields  map[string]string `yaml:"fields,omitempty"`
	apihost *url.URL
}

func newOptions() *Options {
	return &Options{Fields: make(map[string]string)}
}

func (o *Options) CopyStarredFieldsFrom(other *Options) {
	o.Telemetry.APIKey = other.Telemetry.APIKey
	o.Output.RedisPassword = other.Output.RedisPassword
	o.Global.DebugPort = other.Global.DebugPort
	o.Global.Config = other.Global.Config
	o.Global.WriteCfg = other.Global.WriteCfg
}

// Validate catches option combinations that would make a run meaningless.
func (o *Options) Validate() error {
	switch {
	case o.Quantity.Workers < 1:
		return errors.Errorf("workers must be at least 1, got %d", o.Quantity.Workers)
	case o.Quantity.WarmUp < 0:
		return errors.Errorf("warmup must not be negative, got %d", o.Quantity.WarmUp)
	case o.Quantity.Interval <= 0:
		return errors.Errorf("interval must be positive, got %s", o.Quantity.Interval)
	case o.Quantity.Rate < 0:
		return errors.Errorf("rate must not be negative, got %v", o.Quantity.Rate)
	case o.Quantity.Mode == "burst" && o.Burst.Size <= 0:
		return errors.Errorf("burstsize must be positive, got %d", o.Burst.Size)
	case o.Quantity.Mode == "burst" && o.Burst.Total < o.Burst.Size:
		return errors.Errorf("bursttotal (%d) must be at least burstsize (%d)", o.Burst.Total, o.Burst.Size)
	}
	return nil
}

// parseHost expands the host shortcuts and returns a cleaned-up url with a
// port, falling back to defaultPort and to a scheme chosen by insecure.
func parseHost(host string, insecure bool, defaultPort string) (*url.URL, error) {
	switch host {
	case "honeycomb":
		host = "https://api.honeycomb.io:443"
	case "dogfood":
		host = "https://api-dogfood.honeycomb.io:443"
	case "local":
		host = "http://localhost"
	default:
	}

	// if the scheme is not specified, fall back to the value of the insecure flag
	defaultScheme := "https"
	if insecure {
		defaultScheme = "http"
	}
	u, err := urlx.ParseWithDefaultScheme(host, defaultScheme)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse host %q", host)
	}
	if u.Port() == "" {
		u.Host = fmt.Sprintf("%s:%s", u.Host, defaultPort)
	}
	return u, nil
}

func ReadConfig(opts *Options, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(opts); err != nil {
		return errors.Wrapf(err, "decoding %s", filename)
	}
	log.Printf("read config from %s\n", filename)
	return nil
}

func WriteConfig(opts *Options, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(opts); err != nil {
		return errors.Wrapf(err, "encoding %s", filename)
	}
	log.Printf("wrote config to %s\n", filename)
	return enc.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// openOutput returns stdout, or the named file opened for appending.
func openOutput(filename string) (io.WriteCloser, error) {
	if filename == "" || filename == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening output file %s", filename)
	}
	return f, nil
}

// newSink builds the sink selected by --sender. Any error here is fatal:
// there's no point warming up a pipeline we can't reach.
func newSink(log Logger, opts *Options) (Sink, error) {
	switch opts.Output.Sender {
	case "dummy":
		return NewSinkDummy(log), nil
	case "print":
		out, err := openOutput(opts.Output.File)
		if err != nil {
			return nil, err
		}
		return NewSinkPrint(log, out), nil
	case "zap":
		out, err := openOutput(opts.Output.File)
		if err != nil {
			return nil, err
		}
		return NewSinkZap(out), nil
	case "logrus":
		out, err := openOutput(opts.Output.File)
		if err != nil {
			return nil, err
		}
		return NewSinkLogrus(out), nil
	case "honeycomb":
		return NewSinkHoneycomb(log, opts)
	case "otel":
		return NewSinkOTel(log, opts)
	case "redis":
		return NewSinkRedis(log, opts)
	}
	return nil, errors.Errorf("unknown sender %s", opts.Output.Sender)
}

func defaultPortFor(opts *Options) string {
	switch {
	case opts.Output.Sender == "otel" && opts.Output.Protocol == "http":
		return "4318"
	case opts.Output.Sender == "otel":
		return "4317"
	case opts.Telemetry.Insecure:
		return "80"
	default:
		return "443"
	}
}

func main() {
	cmdopts := newOptions()

	parser := flags.NewParser(cmdopts, flags.Default)
	parser.Usage = `[OPTIONS] [FIELD=VALUE]...

	loggen generates a sustained, high-rate stream of structured log records for
	load testing a logging pipeline (the classic target is ~100,000 records per
	second). It warms the pipeline up with a fixed number of records, then runs
	one or more workers as fast as they can go (or at --rate each) while
	reporting the achieved rate every --interval. Stop it with Ctrl-C, or use
	--runtime or --target to bound the run; the total is printed on the way out.

	Every tenth record is a long message carrying a nanosecond timestamp, the rest
	are short fixed-shape messages. Every record carries counter, worker and
	run_id fields.

	In --mode=burst it instead sends --bursttotal records in batches of
	--burstsize on a pool of --burstpool, and reports the overall rate.

	Records can be written as JSON lines (zap, logrus), plain lines (print),
	sent to Honeycomb, exported as OTLP logs, pushed onto a Redis list for
	Logstash, or just counted (dummy).

	You can add fields to each record as FIELD=VALUE. The value can be a constant
	or a generator starting with /:
		- /s16 -- lowercase string of length 16
		- /sx32 -- hex string of 32 characters
		- /sw12 -- one of 12 word pairs
		- /ir100 -- int in a range of 0 to 100
		- /ig50,30 -- int in a gaussian distribution with mean 50 and stddev 30
		- /fr1,5 -- float in a range of 1 to 5
		- /b33 -- boolean, true 33% of the time (default 50%)
		- /ts -- the current time in unix nanoseconds

	Fields can also be specified in the config file as key/value pairs under the "fields" key.

	Options can be set in a config file, or on the command line; to specify them in the
	config file, specify it on the command line with "--config=FILENAME". The config file
	format is YAML; use --writecfg to produce one.

	Note: If a config file is used, it MUST be used for all options, except for the ones
	marked in the help text with (*) -- these fields CANNOT be set in the config file.
	`

	// read the command line and envvars into cmdargs
	args, err := parser.Parse()
	if err != nil {
		switch flagsErr := err.(type) {
		case *flags.Error:
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		log.Fatalf("error reading command line: %v", err)
	}

	opts := newOptions()
	if cmdopts.Global.Config != "" {
		if err := ReadConfig(opts, cmdopts.Global.Config); err != nil {
			log.Fatalf("err %v -- unable to read config file %s", err, cmdopts.Global.Config)
		}
		opts.CopyStarredFieldsFrom(cmdopts)
	} else {
		opts = cmdopts // we don't have to read from a file
	}

	// split the args into opts.Fields, potentially overwriting
	for _, arg := range args {
		s := strings.SplitN(arg, "=", 2)
		if len(s) < 2 {
			log.Fatalf("field `%s` missing required '='", s)
		}
		opts.Fields[s[0]] = s[1]
	}

	if opts.Global.WriteCfg != "" {
		err := WriteConfig(opts, opts.Global.WriteCfg)
		if err != nil {
			log.Fatalf("unable to write config: %s\n", err)
		}
		os.Exit(0)
	}

	if err := opts.Validate(); err != nil {
		log.Fatalf("invalid options: %v", err)
	}

	if opts.Global.Seed == "" {
		opts.Global.Seed = opts.Telemetry.Dataset
	}

	logger := NewLogger(opts.Global.LogLevel)

	// validate the field specs once up front so a typo fails fast
	if _, err := NewFielder(opts.Global.Seed, opts.Fields, opts.Format.Extra, 0); err != nil {
		logger.Fatal("unable to create fields as specified: %s\n", err)
	}
	newFielder := func(worker int) (*Fielder, error) {
		return NewFielder(opts.Global.Seed, opts.Fields, opts.Format.Extra, worker)
	}

	counter := NewRateCounter()
	metrics := NewMetrics(counter)

	if opts.Global.DebugPort > 0 {
		http.Handle("/metrics", metrics.Handler())
		go func() {
			err := http.ListenAndServe(fmt.Sprintf("localhost:%d", opts.Global.DebugPort), nil)
			logger.Error("debug server stopped: %v\n", err)
		}()
	}

	if opts.Output.Sender == "honeycomb" || opts.Output.Sender == "otel" {
		opts.apihost, err = parseHost(opts.Telemetry.Host, opts.Telemetry.Insecure, defaultPortFor(opts))
		if err != nil {
			logger.Fatal("%s\n", err)
		}
		logger.Info("host: %s, dataset: %s, apikey: ...%4.4s\n", opts.apihost.String(), opts.Telemetry.Dataset, opts.Telemetry.APIKey)
	}

	sink, err := newSink(logger, opts)
	if err != nil {
		logger.Fatal("unable to start %s sender: %s\n", opts.Output.Sender, err)
	}

	// catch ctrl-c and SIGTERM; cancelling ctx is the signal to shut down
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// after the first signal, a second one kills the process outright
		<-ctx.Done()
		stop()
	}()
	if opts.Quantity.RunTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Quantity.RunTime)
		defer cancel()
	}

	status := os.Stderr
	fmt.Fprintln(status, "Starting log performance test...")
	fmt.Fprintf(status, "Sender: %s | Mode: %s\n", opts.Output.Sender, opts.Quantity.Mode)
	fmt.Fprintln(status, "Press Ctrl+C to stop")

	switch opts.Quantity.Mode {
	case "burst":
		burst := NewBurstEmitter(BurstConfig{
			PoolSize:   opts.Burst.Pool,
			PauseEvery: opts.Burst.PauseEvery,
			Pause:      opts.Burst.Pause,
			RunID:      uuid.NewString(),
		}, sink, counter, metrics, status, logger)
		if _, err := burst.RunBurstTest(ctx, opts.Burst.Total, opts.Burst.Size); err != nil {
			logger.Error("burst test failed: %v\n", err)
		}
	default:
		orch := NewOrchestrator(OrchestratorConfig{
			WarmupCount:     opts.Quantity.WarmUp,
			Settle:          opts.Quantity.Settle,
			Workers:         opts.Quantity.Workers,
			Target:          opts.Quantity.Target,
			Rate:            opts.Quantity.Rate,
			YieldEvery:      opts.Quantity.YieldEvery,
			MonitorInterval: opts.Quantity.Interval,
			ShutdownTimeout: opts.Quantity.ShutdownTimeout,
			NewFielder:      newFielder,
		}, sink, counter, metrics, status, logger)
		if _, err := orch.Run(ctx); err != nil {
			logger.Error("test run failed: %v\n", err)
		}
	}

	if err := sink.Close(); err != nil {
		logger.Error("closing %s sender: %v\n", opts.Output.Sender, err)
	}
	logger.Sync()
}
