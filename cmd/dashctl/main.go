// Command dashctl is a terminal client for the dashboard gateway. It keeps the
// session token in a per-user file and drives the WeRead QR login.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notiontools/dashboard-gateway/internal/client/authclient"
	"notiontools/dashboard-gateway/internal/client/httpclient"
	"notiontools/dashboard-gateway/internal/client/tokenstore"
	"notiontools/dashboard-gateway/internal/client/view"
	"notiontools/dashboard-gateway/internal/observability"
	"notiontools/dashboard-gateway/internal/weread"
)

var Version = "dev"

type globals struct {
	server    string
	wereadURL string
	tokenFile string
	timeout   time.Duration
	logLevel  string
}

func (g *globals) logger(w io.Writer) *slog.Logger {
	return observability.NewLoggerTo(w, g.logLevel)
}

func (g *globals) tokens() (*tokenstore.File, error) {
	return tokenstore.NewFile(g.tokenFile)
}

func (g *globals) gateway(tokens tokenstore.Reader, log *slog.Logger) *httpclient.Client {
	return httpclient.New(httpclient.Config{
		BaseURL:   g.server,
		Timeout:   g.timeout,
		Tokens:    tokens,
		Logger:    log,
		UserAgent: "dashctl/" + Version,
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "dashctl",
		Short:         "Terminal client for the dashboard gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.server, "server", envOr("DASHBOARD_SERVER", "http://localhost:8080"), "Gateway base URL")
	cmd.PersistentFlags().StringVar(&g.wereadURL, "weread-url", envOr("WEREAD_SERVICE_URL", "http://localhost:5000"), "WeRead backend base URL")
	cmd.PersistentFlags().StringVar(&g.tokenFile, "token-file", tokenstore.DefaultPath(), "Where the session token is kept")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", httpclient.DefaultTimeout, "Per-request timeout")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		loginCmd(g),
		registerCmd(g),
		logoutCmd(g),
		whoamiCmd(g),
		statusCmd(g),
		wereadLoginCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "dashctl %s\n", Version)
			},
		},
	)
	return cmd
}

func loginCmd(g *globals) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := g.tokens()
			if err != nil {
				return err
			}
			client := authclient.New(g.gateway(tokens, g.logger(cmd.ErrOrStderr())), tokens)
			res, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", res.User.Name, res.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("DASHCTL_PASSWORD"), "Account password (or DASHCTL_PASSWORD)")
	return cmd
}

func registerCmd(g *globals) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := g.tokens()
			if err != nil {
				return err
			}
			client := authclient.New(g.gateway(tokens, g.logger(cmd.ErrOrStderr())), tokens)
			res, err := client.Register(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s <%s>\n", res.User.Name, res.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("DASHCTL_PASSWORD"), "Account password (or DASHCTL_PASSWORD)")
	return cmd
}

func logoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the local token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := g.tokens()
			if err != nil {
				return err
			}
			client := authclient.New(g.gateway(tokens, g.logger(cmd.ErrOrStderr())), tokens)
			if err := client.Logout(cmd.Context()); err != nil {
				// The local token is gone either way.
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := g.tokens()
			if err != nil {
				return err
			}
			log := g.logger(cmd.ErrOrStderr())
			gate := view.NewProtectedGate(authclient.New(g.gateway(tokens, log), tokens), tokens, log)
			res := gate.Enter(cmd.Context())
			if !res.Allowed() {
				if res.Err != nil {
					return fmt.Errorf("not signed in (%v); see %s", res.Err, res.Redirect)
				}
				return fmt.Errorf("not signed in; see %s", res.Redirect)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> id=%s role=%s\n", res.User.Name, res.User.Email, res.User.ID, res.User.Role)
			return nil
		},
	}
}

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the navigation offered for the local session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := g.tokens()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view.NavigationFor(tokens))
		},
	}
}

func wereadLoginCmd(g *globals) *cobra.Command {
	var (
		authCode     string
		readCount    int
		scheduleTime string
		interval     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "weread-login",
		Short: "Log in to WeRead by QR code and optionally register auto sign-in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			log := g.logger(cmd.ErrOrStderr())

			backend := httpclient.New(httpclient.Config{Timeout: g.timeout, Logger: log, UserAgent: "dashctl/" + Version})
			qr := weread.NewQRLogin(backend, g.wereadURL, log)
			if interval > 0 {
				qr.Interval = interval
			}

			session, err := qr.Start(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Scan this QR code with WeChat:\n%s\n", session.QRCode)

			last := ""
			final, err := qr.Poll(ctx, session.SessionID, func(s weread.QRStatus) {
				if s.Status != last {
					last = s.Status
					fmt.Fprintf(out, "status: %s %s\n", s.Status, s.Message)
				}
			})
			if errors.Is(err, context.Canceled) {
				cancelCtx, cancel := context.WithTimeout(context.Background(), g.timeout)
				defer cancel()
				if cerr := qr.Cancel(cancelCtx, session.SessionID); cerr != nil {
					log.Warn("cancel qr session failed", "err", cerr)
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "WeRead login completed")

			if authCode == "" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]json.RawMessage{"headers": final.Headers, "cookies": final.Cookies})
			}

			tokens, err := g.tokens()
			if err != nil {
				return err
			}
			req := weread.SigninRequest{
				AuthCode:     authCode,
				Headers:      final.Headers,
				Cookies:      final.Cookies,
				ReadCount:    json.RawMessage(fmt.Sprint(readCount)),
				ScheduleTime: scheduleTime,
			}
			env := g.gateway(tokens, log).Request(ctx, http.MethodPost, "/api/weread-signin", req)
			if !env.Success {
				return fmt.Errorf("register auto sign-in: %s", env.Error)
			}
			var res weread.SigninResult
			if err := env.DecodeData(&res); err != nil {
				return fmt.Errorf("decode sign-in result: %w", err)
			}
			fmt.Fprintf(out, "%s: task %s, %d reads at %s\n", res.Message, res.ID, res.ReadCount, res.ScheduleTime)
			return nil
		},
	}
	cmd.Flags().StringVar(&authCode, "auth-code", "", "Register auto sign-in under this auth code after login")
	cmd.Flags().IntVar(&readCount, "read-count", 1, "Reads per sign-in (1-100)")
	cmd.Flags().StringVar(&scheduleTime, "schedule", "", "Daily HH:MM time, random when empty")
	cmd.Flags().DurationVar(&interval, "poll-interval", weread.DefaultPollInterval, "Status poll interval")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
