// Package search wires configuration, logging, transport, the search client
// and an output sink to run one search from the command line.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/gurre/tweezer-client-go/adaptor/amqpsink"
	"github.com/gurre/tweezer-client-go/adaptor/configloader"
	"github.com/gurre/tweezer-client-go/adaptor/logfile"
	"github.com/gurre/tweezer-client-go/adaptor/tweezer"
	"github.com/gurre/tweezer-client-go/logic/tweet"
	"github.com/gurre/tweezer-client-go/state/config"
)

// ErrUsage marks a malformed command line, as opposed to a failed search.
var ErrUsage = errors.New("usage")

// Sink names accepted in Options.Sink.
const (
	SinkStdout = "stdout"
	SinkAMQP   = "amqp"
)

// Options holds the CLI arguments for one search.
type Options struct {
	// ConfigFile is the YAML config path; empty uses defaults.
	ConfigFile string
	// Endpoint overrides the configured endpoint when set.
	Endpoint string
	// MaxRetries overrides the configured retry budget when non-nil.
	MaxRetries *int
	// Sink selects where tweets go: stdout or amqp.
	Sink string
	// Params are sent to the service verbatim.
	Params map[string]string
	// Out receives JSON lines for the stdout sink.
	Out io.Writer
	// Err receives log output.
	Err io.Writer
}

// DefaultOptions returns options writing JSON lines to stdout and logs to
// stderr.
//
//	opts := search.DefaultOptions()
//	opts.Params = map[string]string{"query": "golang"}
func DefaultOptions() Options {
	return Options{
		Sink:   SinkStdout,
		Params: map[string]string{},
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
}

// ParseParams turns key=value arguments into a parameter mapping. The value
// may itself contain '='. A repeated key keeps the last value.
//
//	params, err := search.ParseParams([]string{"query=golang", "lang=en"})
func ParseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("search: %w: parameter %q is not key=value", ErrUsage, arg)
		}
		params[key] = value
	}
	return params, nil
}

// tweetSink receives each tweet pulled from the stream.
type tweetSink interface {
	Write(ctx context.Context, tw tweet.Tweet) error
	Close() error
}

// jsonLinesSink writes one JSON object per line.
type jsonLinesSink struct {
	enc *json.Encoder
}

func (s *jsonLinesSink) Write(_ context.Context, tw tweet.Tweet) error {
	if err := s.enc.Encode(tw); err != nil {
		return fmt.Errorf("search: write tweet %d: %w", tw.ID, err)
	}
	return nil
}

func (s *jsonLinesSink) Close() error { return nil }

// Run executes one search and forwards every tweet to the selected sink. It
// blocks until the stream ends, an error occurs, or SIGTERM/SIGINT arrives.
//
//	err := search.Run(ctx, opts)
func Run(ctx context.Context, opts Options) error {
	cfg, err := configloader.LoadClient(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("search: load config: %w", err)
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.MaxRetries != nil {
		cfg.MaxRetries = *opts.MaxRetries
	}

	logger, closeLog, err := newLogger(cfg, opts.Err)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}
	if cfg.ProxyURI != "" {
		logger.Info("proxy configured", "uri", cfg.ProxyURI)
	}

	sink, err := openSink(opts, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	client := tweezer.NewClient(httpClient, cfg.Endpoint, cfg.MaxRetries, logger).
		WithBackoff(cfg.BackoffBase, nil)

	logger.Info("search starting", "endpoint", client.Endpoint(), "maxRetries", cfg.MaxRetries, "sink", opts.Sink)

	stream, err := client.Search(ctx, opts.Params)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	n := 0
	for tw, err := range stream.All() {
		if err != nil {
			return fmt.Errorf("search: after %d tweets: %w", n, err)
		}
		if err := sink.Write(ctx, tw); err != nil {
			return err
		}
		n++
	}

	logger.Info("search complete", "tweets", n)
	return nil
}

// newLogger writes text logs to errOut and, when LogDir is set, to a rotating
// file as well.
func newLogger(cfg config.Client, errOut io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("search: log level %q: %w", cfg.LogLevel, err)
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	out := errOut
	closeLog := func() {}
	if cfg.LogDir != "" {
		w, err := logfile.Open(filepath.Join(cfg.LogDir, "tweezer-search.log"), 64*1024*1024, 8)
		if err != nil {
			return nil, nil, fmt.Errorf("search: open log file: %w", err)
		}
		out = io.MultiWriter(errOut, w)
		closeLog = func() { _ = w.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closeLog, nil
}

// newHTTPClient builds the connection used for every attempt of the search.
// HTTPTimeout of zero leaves long streams unbounded.
func newHTTPClient(cfg config.Client) (*http.Client, error) {
	var transport http.RoundTripper
	if cfg.ProxyURI != "" {
		proxyURL, err := url.Parse(cfg.ProxyURI)
		if err != nil {
			return nil, fmt.Errorf("search: parse proxy URI: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return &http.Client{Transport: transport, Timeout: cfg.HTTPTimeout}, nil
}

func openSink(opts Options, cfg config.Client, logger *slog.Logger) (tweetSink, error) {
	switch opts.Sink {
	case "", SinkStdout:
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		return &jsonLinesSink{enc: json.NewEncoder(out)}, nil
	case SinkAMQP:
		s, err := amqpsink.Dial(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("search: unknown sink %q", opts.Sink)
	}
}
