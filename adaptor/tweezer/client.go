// Package tweezer implements the client for the tweet search service.
//
// Search posts the parameters to {endpoint}/search. A 503 answer means the
// server is overloaded: the client waits a jittered interval and resends, up
// to maxRetries times. A 200 answer opens a newline-delimited JSON stream that
// is decoded lazily, one line per pulled tweet. Any other status is fatal.
package tweezer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gurre/tweezer-client-go/logic/backoff"
)

const (
	// DefaultEndpoint is the public search service.
	DefaultEndpoint = "https://dark-tweezer.herokuapp.com"
	// DefaultMaxRetries is the busy-retry budget per search.
	DefaultMaxRetries = 10

	searchPath = "/search"
	// maxErrorBody caps how much of a non-200 body is kept for diagnostics.
	maxErrorBody = 64 * 1024
)

// state is a step of the search state machine.
type state int

const (
	stateRequesting state = iota
	stateBusy
	stateStreaming
	stateFatal
)

// sleepFunc suspends for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// Client searches the tweet service. It is safe for concurrent use: each
// Search owns its retry counter, backoff sequencer and response.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	version     string
	logger      *slog.Logger
	rnd         backoff.Rand
	sleep       sleepFunc
	backoffBase time.Duration
	maxRetries  int
}

// NewClient creates a search client. A nil httpClient gets a fresh client
// without timeout, since result streams are long lived; an empty
// endpointOverride uses DefaultEndpoint. The client never closes httpClient.
//
// maxRetries is the busy-retry budget. Zero makes the first 503 fatal, and so
// does any negative value.
//
//	client := tweezer.NewClient(nil, "", tweezer.DefaultMaxRetries, slog.Default())
//	stream, err := client.Search(ctx, map[string]string{"query": "golang"})
func NewClient(httpClient *http.Client, endpointOverride string, maxRetries int, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	endpoint := endpointOverride
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient:  httpClient,
		endpoint:    strings.TrimRight(endpoint, "/"),
		version:     resolveVersion(),
		logger:      logger,
		sleep:       sleepContext,
		backoffBase: backoff.DefaultBase,
		maxRetries:  maxRetries,
	}
}

// WithBackoff returns a copy of c that paces busy retries from base using rnd.
// A nil rnd uses the process-wide source. When c is shared between
// goroutines, rnd must be safe for concurrent use.
//
//	client = client.WithBackoff(2*time.Second, rand.New(rand.NewPCG(1, 2)))
func (c *Client) WithBackoff(base time.Duration, rnd backoff.Rand) *Client {
	cp := *c
	cp.backoffBase = base
	cp.rnd = rnd
	return &cp
}

// Endpoint returns the base URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// resolveVersion reads the module version from Go build info.
// Falls back to "unknown" when build info is unavailable (e.g. go run).
func resolveVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "unknown"
	}
	return bi.Main.Version
}

// Search sends the search and returns the open result stream. The parameters
// are sent verbatim as a JSON object; the server validates them.
//
// Errors: *BusyError when 503 persists past the retry budget, *ProtocolError
// for any other non-200 status, and wrapped transport or context errors. Decode
// faults surface later, from the Stream.
//
// The caller must drain or Close the returned stream. ctx bounds the whole
// search, stream consumption included.
//
//	stream, err := client.Search(ctx, params)
//	if err != nil { return err }
//	for tw, err := range stream.All() { ... }
func (c *Client) Search(ctx context.Context, params map[string]string) (*Stream, error) {
	if params == nil {
		params = map[string]string{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("tweezer: marshal search: %w", err)
	}

	nextWait, stopWaits := iter.Pull(backoff.NewSequencer(c.backoffBase, c.rnd).All())
	defer stopWaits()

	var (
		st      = stateRequesting
		retries int
		resp    *http.Response
	)

	for {
		switch st {
		case stateRequesting:
			resp, err = c.post(ctx, body)
			if err != nil {
				st = stateFatal
				continue
			}
			switch resp.StatusCode {
			case http.StatusOK:
				st = stateStreaming
			case http.StatusServiceUnavailable:
				st = stateBusy
			default:
				err = &ProtocolError{StatusCode: resp.StatusCode, Body: readAndClose(resp.Body)}
				st = stateFatal
			}

		case stateBusy:
			if retries >= c.maxRetries {
				_ = resp.Body.Close()
				err = &BusyError{Retries: retries}
				st = stateFatal
				continue
			}
			text := readAndClose(resp.Body)
			wait, _ := nextWait()
			retries++
			c.logger.Warn("server busy",
				"message", text,
				"sleep", wait,
				"retry", retries)
			if err = c.sleep(ctx, wait); err != nil {
				err = fmt.Errorf("tweezer: backoff: %w", err)
				st = stateFatal
				continue
			}
			st = stateRequesting

		case stateStreaming:
			c.logger.Debug("search stream open", "endpoint", c.endpoint, "retries", retries)
			return newStream(resp.Body), nil

		case stateFatal:
			return nil, err
		}
	}
}

// post issues one search request. The response body is left open.
func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tweezer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson, application/json")
	req.Header.Set("User-Agent", "tweezer-client-go/"+c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tweezer: search: %w", err)
	}
	return resp, nil
}

// readAndClose returns up to maxErrorBody bytes of body as text. Read errors
// are ignored; the text is diagnostic only.
func readAndClose(body io.ReadCloser) string {
	defer func() { _ = body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
