package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/wptdiff/adapter"
	redisadapter "github.com/pithecene-io/wptdiff/adapter/redis"
	"github.com/pithecene-io/wptdiff/adapter/webhook"
	"github.com/pithecene-io/wptdiff/cli/config"
	"github.com/pithecene-io/wptdiff/cli/render"
	"github.com/pithecene-io/wptdiff/export"
	"github.com/pithecene-io/wptdiff/log"
	"github.com/pithecene-io/wptdiff/metrics"
	"github.com/pithecene-io/wptdiff/poll"
	"github.com/pithecene-io/wptdiff/runtime"
	"github.com/pithecene-io/wptdiff/types"
	"github.com/pithecene-io/wptdiff/wpt"
)

// Exit codes of the run command.
const (
	exitSuccess        = 0
	exitRunFailure     = 1
	exitConfigError    = 2
	exitPublishFailure = 3
)

// publishTimeout bounds report export and adapter delivery after the run.
// They get their own deadline so a cancelled run can still be reported.
const publishTimeout = 30 * time.Second

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a wptdiff.yaml config file",
		},
		// Targets
		&cli.StringSliceFlag{
			Name:    "url",
			Aliases: []string{"u"},
			Usage:   "Page to compare (repeat, at least twice; env WPT_URLS)",
		},
		&cli.StringSliceFlag{
			Name:  "label",
			Usage: "Label for the URL at the same position (repeat; env WPT_LABELS)",
		},
		&cli.StringFlag{
			Name:  "display-label",
			Usage: "Label used for every test when --label is not given",
		},
		// Service
		&cli.StringFlag{
			Name:  "host",
			Usage: "WebPageTest host, optionally with scheme (env WPT_HOST)",
		},
		&cli.StringFlag{
			Name:  "api-key",
			Usage: "WebPageTest API key (env WPT_API_KEY)",
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "Per-request HTTP timeout",
			Value: wpt.DefaultTimeout,
		},
		// Test options
		&cli.StringFlag{Name: "location", Usage: "Test agent location (env WPT_LOCATION)"},
		&cli.StringFlag{Name: "connectivity", Usage: "Connection profile, e.g. Cable or 3G (env WPT_CONNECTIVITY)"},
		&cli.BoolFlag{Name: "mobile", Usage: "Emulate a mobile browser (env WPT_MOBILE)"},
		&cli.BoolFlag{Name: "bodies", Value: true, Usage: "Capture response bodies; --bodies=false to skip (env WPT_BODIES)"},
		&cli.BoolFlag{Name: "timeline", Value: true, Usage: "Capture the dev tools timeline; --timeline=false to skip (env WPT_TIMELINE)"},
		&cli.BoolFlag{Name: "tcpdump", Usage: "Capture a packet trace (env WPT_TCPDUMP)"},
		&cli.BoolFlag{Name: "private", Value: true, Usage: "Hide tests from the public history; --private=false to publish (env WPT_PRIVATE)"},
		&cli.StringFlag{Name: "video-end", Usage: "Where filmstrips stop: visual, doc or full"},
		// Polling
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Delay between status checks",
			Value: poll.DefaultInterval,
		},
		&cli.IntFlag{
			Name:  "poll-max-attempts",
			Usage: "Status checks per resource before giving up (0 = unbounded)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Deadline for the whole comparison (0 = none)",
		},
		// Output
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (env WPT_LOG_LEVEL)",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a run report to a file, - (stderr) or s3://bucket/key; {run_id} is substituted",
		},
		&cli.StringFlag{Name: "report-s3-region", Usage: "AWS region for s3:// reports"},
		&cli.StringFlag{Name: "report-s3-endpoint", Usage: "Custom endpoint for S3-compatible storage"},
		&cli.BoolFlag{Name: "report-s3-path-style", Usage: "Use path-style S3 addressing"},
		// Adapter
		&cli.StringFlag{Name: "adapter", Usage: "Completion notification adapter: webhook or redis"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Webhook endpoint or redis:// URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
		&cli.StringFlag{Name: "adapter-list-key", Usage: "Redis list that also receives every event"},
		&cli.StringFlag{Name: "adapter-codec", Usage: "Event encoding: json or msgpack"},
		&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header as Key=Value (repeat)"},
		&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-delivery timeout"},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Delivery retries", Value: webhook.DefaultRetries},
	}

	return &cli.Command{
		Name:   "run",
		Usage:  "Compare two or more pages on WebPageTest",
		Flags:  append(flags, OutputFlags()...),
		Action: runAction,
	}
}

// settings is the fully resolved run configuration.
type settings struct {
	host           string
	apiKey         string
	requestTimeout time.Duration
	request        types.RunRequest
	options        types.TestOptions
	private        bool
	video          types.VideoOptions
	pollInterval   time.Duration
	pollAttempts   int
	timeout        time.Duration
	logLevel       string
	report         config.ReportConfig
	adapter        config.AdapterConfig
}

func runAction(c *cli.Context) error {
	s, err := resolveSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	level, err := log.ParseLevel(s.logLevel)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	logger := log.NewLogger(log.RunContext{Host: s.host}, level)
	defer logger.Sync()
	sugar := logger.Sugar()

	client, err := wpt.New(wpt.Config{
		Host:    s.host,
		APIKey:  s.apiKey,
		Timeout: s.requestTimeout,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	pub, err := buildAdapter(s.adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), exitConfigError)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	collector := metrics.NewCollector(client.Host(), "")
	orchestrator := runtime.New(client, runtime.Config{
		Host:            client.Host(),
		APIKey:          s.apiKey,
		Options:         s.options,
		Private:         &s.private,
		Video:           s.video,
		PollInterval:    s.pollInterval,
		PollMaxAttempts: s.pollAttempts,
		Logger:          logger,
		Collector:       collector,
	})

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	result, runErr := orchestrator.Run(ctx, s.request)
	duration := time.Since(startedAt)
	code := runExitCode(runErr)
	runID := orchestrator.LastRunID()

	if runErr == nil && !c.Bool("quiet") {
		if err := r.Render(result); err != nil {
			sugar.Errorf("render result: %v", err)
		}
	}

	// Publishing gets a fresh context so an interrupted run is still reported.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), publishTimeout)
	defer cancel()

	var publishErrs []error
	var reportLocation string
	if s.report.Path != "" {
		report := runtime.BuildRunReport(runtime.ReportInput{
			RunID:     runID,
			Host:      client.Host(),
			Request:   s.request,
			Result:    result,
			Err:       runErr,
			ExitCode:  code,
			StartedAt: startedAt,
			Duration:  duration,
			Metrics:   collector.Snapshot(),
		})
		location, err := writeReport(pubCtx, s.report, runID, report)
		if err != nil {
			publishErrs = append(publishErrs, fmt.Errorf("write report: %w", err))
		} else {
			reportLocation = location
			sugar.Infof("report written to %s", location)
		}
	}

	if pub != nil {
		event := completionEvent(runID, client.Host(), s.request, result, runErr, duration)
		event.ReportLocation = reportLocation
		if err := pub.Publish(pubCtx, event); err != nil {
			publishErrs = append(publishErrs, fmt.Errorf("publish event: %w", err))
		}
	}

	if runErr != nil {
		for _, err := range publishErrs {
			sugar.Errorf("%v", err)
		}
		return cli.Exit(runErr.Error(), code)
	}
	if len(publishErrs) > 0 {
		return cli.Exit(errors.Join(publishErrs...).Error(), exitPublishFailure)
	}
	return nil
}

// resolveSettings merges defaults, config file, environment, then flags.
func resolveSettings(c *cli.Context) (*settings, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.FromEnv(cfg); err != nil {
		return nil, err
	}

	opts := cfg.Test.Options()
	s := &settings{
		host:           resolveString(c, "host", cfg.Host),
		apiKey:         resolveString(c, "api-key", cfg.APIKey),
		requestTimeout: c.Duration("request-timeout"),
		request: types.RunRequest{
			URLs:   resolveStrings(c, "url", cfg.URLs),
			Labels: resolveStrings(c, "label", cfg.Labels),
			Label:  resolveString(c, "display-label", cfg.Label),
		},
		options: types.TestOptions{
			Location:     resolveString(c, "location", opts.Location),
			Connectivity: resolveString(c, "connectivity", opts.Connectivity),
			Mobile:       resolveBool(c, "mobile", opts.Mobile),
			Bodies:       resolveBool(c, "bodies", opts.Bodies),
			Timeline:     resolveBool(c, "timeline", opts.Timeline),
			TCPDump:      resolveBool(c, "tcpdump", opts.TCPDump),
		},
		private:      resolveBool(c, "private", cfg.Private),
		video:        types.VideoOptions{End: resolveString(c, "video-end", cfg.Video.End)},
		pollInterval: resolveDuration(c, "poll-interval", cfg.Poll.Interval.Duration),
		pollAttempts: resolveInt(c, "poll-max-attempts", cfg.Poll.MaxAttempts),
		timeout:      resolveDuration(c, "timeout", cfg.Poll.Timeout.Duration),
		logLevel:     resolveString(c, "log-level", cfg.LogLevel),
		report: config.ReportConfig{
			Path:        resolveString(c, "report", cfg.Report.Path),
			Region:      resolveString(c, "report-s3-region", cfg.Report.Region),
			Endpoint:    resolveString(c, "report-s3-endpoint", cfg.Report.Endpoint),
			S3PathStyle: resolveBool(c, "report-s3-path-style", cfg.Report.S3PathStyle),
		},
		adapter: resolveAdapter(c, cfg.Adapter),
	}

	// Keep the JSON log stream quiet under an interactive table unless asked.
	if s.logLevel == "" && isStderrTTY() {
		s.logLevel = "warn"
	}

	if s.pollAttempts < 0 {
		return nil, fmt.Errorf("--poll-max-attempts must be >= 0, got %d", s.pollAttempts)
	}
	if s.pollInterval < 0 {
		return nil, fmt.Errorf("--poll-interval must not be negative, got %s", s.pollInterval)
	}
	switch s.video.End {
	case "", "visual", "doc", "full":
	default:
		return nil, fmt.Errorf("--video-end must be visual, doc or full, got %q", s.video.End)
	}
	if err := s.request.Validate(); err != nil {
		return nil, fmt.Errorf("%w (use --url or WPT_URLS)", err)
	}
	if err := s.options.Validate(); err != nil {
		return nil, fmt.Errorf("%w (set --location or WPT_LOCATION)", err)
	}
	return s, nil
}

func resolveAdapter(c *cli.Context, fromFile config.AdapterConfig) config.AdapterConfig {
	a := config.AdapterConfig{
		Type:    resolveString(c, "adapter", fromFile.Type),
		URL:     resolveString(c, "adapter-url", fromFile.URL),
		Channel: resolveString(c, "adapter-channel", fromFile.Channel),
		ListKey: resolveString(c, "adapter-list-key", fromFile.ListKey),
		Codec:   resolveString(c, "adapter-codec", fromFile.Codec),
		Headers: fromFile.Headers,
		Timeout: config.Duration{Duration: resolveDuration(c, "adapter-timeout", fromFile.Timeout.Duration)},
	}
	if c.IsSet("adapter-header") {
		a.Headers = parseHeaders(c.StringSlice("adapter-header"))
	}
	retries := c.Int("adapter-retries")
	if !c.IsSet("adapter-retries") && fromFile.Retries != nil {
		retries = *fromFile.Retries
	}
	a.Retries = &retries
	return a
}

func parseHeaders(pairs []string) map[string]string {
	headers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if key, value, ok := strings.Cut(p, "="); ok {
			headers[strings.TrimSpace(key)] = value
		}
	}
	return headers
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	codec := adapter.Codec(cfg.Codec)

	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
			Codec:   codec,
		})
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			ListKey: cfg.ListKey,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
			Codec:   codec,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", cfg.Type)
	}
}

func writeReport(ctx context.Context, cfg config.ReportConfig, runID string, report *runtime.RunReport) (string, error) {
	data, err := report.Marshal()
	if err != nil {
		return "", err
	}
	w, err := export.Open(ctx, export.Expand(cfg.Path, runID), export.Options{
		Stream: os.Stderr,
		S3: export.S3Config{
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		},
	})
	if err != nil {
		return "", err
	}
	if err := w.Put(ctx, data, "application/json"); err != nil {
		return "", err
	}
	return w.Location(), nil
}

func completionEvent(runID, host string, req types.RunRequest, result *types.RunResult, runErr error, duration time.Duration) *adapter.ComparisonCompletedEvent {
	outcome := runtime.DetermineOutcome(runErr)
	event := &adapter.ComparisonCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeComparisonCompleted,
		RunID:           runID,
		Host:            host,
		Outcome:         string(outcome.Status),
		URLs:            req.URLs,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      duration.Milliseconds(),
	}
	if runErr != nil {
		event.Message = outcome.Message
	}
	if result != nil {
		event.TestIDs = result.IDs
		event.VideoID = videoData(result.Video).ID()
	}
	return event
}

// videoData reads the artifact identifiers from a create-video detail.
func videoData(detail map[string]any) types.VideoData {
	var v types.VideoData
	v.VideoID, _ = detail["videoId"].(string)
	v.ArtifactID, _ = detail["artifactId"].(string)
	v.JSONURL, _ = detail["jsonUrl"].(string)
	return v
}

func runExitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case runtime.IsInvalidRequest(err):
		return exitConfigError
	default:
		return exitRunFailure
	}
}
