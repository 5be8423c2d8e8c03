package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searcher/internal/config"
	"github.com/searcher/pkg/network"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reqPath     string
	reqMethod   string
	reqFullPath bool
	reqBaseURL  string
	reqQuery    map[string]string
	reqHeaders  map[string]string
	reqBody     map[string]string
	reqForm     bool
	reqTimeout  time.Duration
	reqProtocol string
)

var requestCmd = &cobra.Command{
	Use:   "request [endpoint]",
	Short: "Send a single request",
	Long: `Send one request and print the response body, or the classified error.

The endpoint is looked up by name in the config file. Without a name, an
ad-hoc endpoint is built from --path.

Examples:
  searcher request search --query q=cat
  searcher request --base-url https://api.example.com --path /search -q q=cat
  searcher request --path https://example.com/health --full-path`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVarP(&reqPath, "path", "p", "", "Endpoint path (ad-hoc request)")
	requestCmd.Flags().StringVarP(&reqMethod, "method", "X", "", "HTTP method")
	requestCmd.Flags().BoolVar(&reqFullPath, "full-path", false, "Treat --path as an absolute URL")
	requestCmd.Flags().StringVar(&reqBaseURL, "base-url", "", "Override network.base_url")
	requestCmd.Flags().StringToStringVarP(&reqQuery, "query", "q", nil, "Query parameters (k=v)")
	requestCmd.Flags().StringToStringVarP(&reqHeaders, "header", "H", nil, "Headers (k=v)")
	requestCmd.Flags().StringToStringVarP(&reqBody, "data", "d", nil, "Body parameters (k=v)")
	requestCmd.Flags().BoolVar(&reqForm, "form", false, "Encode body parameters as a form")
	requestCmd.Flags().DurationVar(&reqTimeout, "timeout", 0, "Request timeout")
	requestCmd.Flags().StringVar(&reqProtocol, "protocol", "", "Override network.protocol (http, http2, grpc)")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if reqBaseURL != "" {
		cfg.Network.BaseURL = reqBaseURL
	}
	if reqProtocol != "" {
		cfg.Network.Protocol = config.Protocol(reqProtocol)
		if !cfg.Network.Protocol.Valid() {
			return fmt.Errorf("unsupported protocol %q", reqProtocol)
		}
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid request options: %w", err)
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()

	endpoint, name, err := requestEndpoint(cfg, args)
	if err != nil {
		return err
	}

	svc := network.NewService(cfg.Network.ServiceConfig(), network.WithSession(cfg.Network.NewSession()))
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := send(ctx, svc, endpoint)
	logger.Debug("request resolved",
		zap.String("endpoint", name),
		zap.Bool("success", res.Err == nil),
	)

	if res.Err != nil {
		printError(cmd.ErrOrStderr(), themeFor(cmd.ErrOrStderr()), name, res.Err)
		return fmt.Errorf("request %s failed: %s", name, res.Err.Kind)
	}

	_, err = cmd.OutOrStdout().Write(res.Data)
	return err
}

// send issues the request and waits for its completion.
func send(ctx context.Context, svc *network.Service, endpoint network.Requestable) network.Result {
	done := make(chan network.Result, 1)
	svc.Request(ctx, endpoint, func(r network.Result) {
		done <- r
	})
	return <-done
}

// requestEndpoint resolves the named endpoint or builds an ad-hoc one, then
// applies the command-line overrides.
func requestEndpoint(cfg *config.Config, args []string) (network.Endpoint, string, error) {
	var ep config.Endpoint
	name := "ad-hoc"

	if len(args) == 1 {
		found, ok := cfg.FindEndpoint(args[0])
		if !ok {
			return network.Endpoint{}, "", fmt.Errorf("unknown endpoint %q", args[0])
		}
		ep, name = found, found.Name
	} else if reqPath == "" {
		return network.Endpoint{}, "", fmt.Errorf("either an endpoint name or --path is required")
	}

	if reqPath != "" {
		ep.Path = reqPath
		ep.FullPath = reqFullPath
	}
	if reqMethod != "" {
		ep.Method = reqMethod
	}
	if reqTimeout > 0 {
		ep.Timeout = reqTimeout
	}
	if reqForm {
		ep.Form = true
	}
	ep.Query = merge(ep.Query, reqQuery)
	ep.Headers = merge(ep.Headers, reqHeaders)
	if len(reqBody) > 0 {
		body := make(map[string]any, len(ep.Body)+len(reqBody))
		for k, v := range ep.Body {
			body[k] = v
		}
		for k, v := range reqBody {
			body[k] = v
		}
		ep.Body = body
	}

	return ep.Descriptor(), name, nil
}

func merge(base, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

const maxBodyPreview = 512

// printError describes a classified error.
func printError(w io.Writer, t theme, name string, err *network.Error) {
	fmt.Fprintln(w, t.Error.Render("✗ "+name+": "+err.Kind.String()))

	switch err.Kind {
	case network.KindHTTP:
		fmt.Fprintln(w, t.row("status", 8, t.Value.Render(fmt.Sprintf("%d", err.StatusCode))))
		if len(err.Data) > 0 {
			body := err.Data
			suffix := ""
			if len(body) > maxBodyPreview {
				body = body[:maxBodyPreview]
				suffix = t.Dim.Render(fmt.Sprintf(" … (%d bytes)", len(err.Data)))
			}
			fmt.Fprintln(w, t.row("body", 8, string(body)+suffix))
		}
	case network.KindNotConnected:
		fmt.Fprintln(w, t.Dim.Render("  check your network connection"))
	case network.KindCancelled:
		fmt.Fprintln(w, t.Dim.Render("  the request was cancelled before it completed"))
	}

	if err.Err != nil && err.Kind != network.KindHTTP {
		fmt.Fprintln(w, t.row("cause", 8, t.Dim.Render(err.Err.Error())))
	}
}
