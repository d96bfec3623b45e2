// Command tweezer-search runs one search against the tweet search service and
// writes every result as a JSON line to stdout, or publishes it to RabbitMQ.
//
// Usage:
//
//	tweezer-search [flags] key=value ...
//
// Flags:
//
//	-c, --config       Path to tweezer.yml (default: none, built-in defaults)
//	-e, --endpoint     Service base URL (default: https://dark-tweezer.herokuapp.com)
//	-r, --max-retries  Busy-retry budget (default: 10)
//	-s, --sink         stdout or amqp (default: stdout)
//
// Every positional key=value argument is sent verbatim as a search parameter.
//
// Exit status is 2 for a malformed command line, like the flag package, and 1
// when the search itself fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/gurre/tweezer-client-go/entrypoint/search"
)

func main() {
	opts := search.DefaultOptions()

	setRetries := func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		opts.MaxRetries = &n
		return nil
	}

	flag.StringVar(&opts.ConfigFile, "c", "", "Path to config file")
	flag.StringVar(&opts.ConfigFile, "config", "", "Path to config file")
	flag.StringVar(&opts.Endpoint, "e", "", "Service base URL")
	flag.StringVar(&opts.Endpoint, "endpoint", "", "Service base URL")
	flag.Func("r", "Busy-retry budget", setRetries)
	flag.Func("max-retries", "Busy-retry budget", setRetries)
	flag.StringVar(&opts.Sink, "s", opts.Sink, "Output sink (stdout, amqp)")
	flag.StringVar(&opts.Sink, "sink", opts.Sink, "Output sink (stdout, amqp)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tweezer-search [flags] key=value ...\n\nSearches tweets and streams the results.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	params, err := search.ParseParams(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tweezer-search: %s\n", err)
		if errors.Is(err, search.ErrUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
	opts.Params = params

	if err := search.Run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "tweezer-search: %s\n", err)
		os.Exit(1)
	}
}
