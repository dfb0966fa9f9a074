// Command raven sends events and user feedback from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	raven "github.com/ravenclient/raven-go"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "raven",
		Usage:   "Send events and user feedback to a Sentry server",
		Version: raven.SDKVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "DSN to send to, overrides the configuration",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Print SDK debug output to stderr",
			},
		},
		Commands: []*cli.Command{
			sendEventCmd(),
			sendFeedbackCmd(),
		},
	}
}

func sendEventCmd() *cli.Command {
	return &cli.Command{
		Name:    "send-event",
		Aliases: []string{"e"},
		Usage:   "Send a message event",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "message",
				Aliases:  []string{"m"},
				Usage:    "Message of the event",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "level",
				Usage: "One of debug, info, warning, error, fatal",
				Value: string(raven.LevelError),
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Tag as key=value, may be repeated",
			},
		},
		Action: func(c *cli.Context) error {
			level, err := parseLevel(c.String("level"))
			if err != nil {
				return err
			}
			tags, err := parseTags(c.StringSlice("tag"))
			if err != nil {
				return err
			}

			client, delivery, err := newClient(c)
			if err != nil {
				return err
			}

			event := raven.NewEvent()
			event.Message = c.String("message")
			event.Level = level
			event.Tags = tags

			id := client.Capture(c.Context, event)
			client.Close()
			return report(c, id, "event", delivery)
		},
	}
}

func sendFeedbackCmd() *cli.Command {
	return &cli.Command{
		Name:    "send-feedback",
		Aliases: []string{"f"},
		Usage:   "Send user feedback about a previously sent event",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "event-id",
				Usage:    "ID of the event the feedback is about",
				Required: true,
			},
			&cli.StringFlag{Name: "name", Usage: "Name of the user"},
			&cli.StringFlag{Name: "email", Usage: "Email of the user"},
			&cli.StringFlag{
				Name:     "comments",
				Usage:    "What the user has to say",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			client, delivery, err := newClient(c)
			if err != nil {
				return err
			}

			id := client.SendUserFeedback(c.Context, &raven.UserFeedback{
				EventID:  c.String("event-id"),
				Name:     c.String("name"),
				Email:    c.String("email"),
				Comments: c.String("comments"),
			})
			client.Close()
			return report(c, id, "feedback", delivery)
		},
	}
}

func newClient(c *cli.Context) (*raven.Client, *deliveryObserver, error) {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if dsn := c.String("dsn"); dsn != "" {
		cfg.Dsn = dsn
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if cfg.Dsn == "" {
		return nil, nil, cli.Exit("no DSN configured: use --dsn, RAVEN_DSN or the config file", 2)
	}

	delivery := &deliveryObserver{}
	options := cfg.ClientOptions()
	options.DebugWriter = c.App.ErrWriter
	options.AsyncOptions = append(options.AsyncOptions, raven.WithObserver(delivery))
	client, err := raven.NewClient(options)
	if err != nil {
		return nil, nil, err
	}
	return client, delivery, nil
}

// report prints id once the client was closed. A queued request that failed
// in the background or was abandoned turns into a non-zero exit code.
func report(c *cli.Context, id, what string, delivery *deliveryObserver) error {
	if id == "" {
		return cli.Exit(what+" was not sent", 1)
	}
	if err := delivery.Err(); err != nil {
		return cli.Exit(fmt.Sprintf("%s %s was not delivered: %v", what, id, err), 1)
	}
	_, err := fmt.Fprintln(c.App.Writer, id)
	return err
}

// deliveryObserver remembers the first background delivery failure.
type deliveryObserver struct {
	mu  sync.Mutex
	err error
}

var _ raven.Observer = (*deliveryObserver)(nil)

func (o *deliveryObserver) Enqueued()        {}
func (o *deliveryObserver) Dropped(error)    {}
func (o *deliveryObserver) Delivered(string) {}

func (o *deliveryObserver) Failed(err error) {
	o.fail(err)
}

func (o *deliveryObserver) Abandoned(n int) {
	o.fail(fmt.Errorf("%d requests abandoned at shutdown", n))
}

func (o *deliveryObserver) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

func (o *deliveryObserver) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func parseLevel(s string) (raven.Level, error) {
	switch level := raven.Level(strings.ToLower(s)); level {
	case raven.LevelDebug, raven.LevelInfo, raven.LevelWarning, raven.LevelError, raven.LevelFatal:
		return level, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

func parseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", pair)
		}
		tags[k] = v
	}
	return tags, nil
}
