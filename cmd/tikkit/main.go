// Command tikkit is a terminal time tracker. Run with no arguments it opens
// the interactive tracker; subcommands cover accounts, reporting, and the
// reference server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tikkit/internal/adapter/broadcast"
	"tikkit/internal/adapter/httpstore"
	"tikkit/internal/adapter/mysql"
	"tikkit/internal/aggregate"
	"tikkit/internal/app"
	"tikkit/internal/config"
	"tikkit/internal/migrate"
	"tikkit/internal/ports"
	"tikkit/internal/server"
	"tikkit/internal/timeutil"
	"tikkit/internal/tui"
)

func main() {
	root := &cobra.Command{
		Use:           "tikkit",
		Short:         "track time on tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context())
		},
	}
	root.AddCommand(loginCmd(), signupCmd(), logoutCmd(), reportCmd(), serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tikkit:", err)
		os.Exit(1)
	}
}

// tuiLogger keeps slog away from the terminal the TUI owns. Set TIKKIT_LOG to
// a path to capture debug output.
func tuiLogger() (*slog.Logger, func(), error) {
	path := os.Getenv("TIKKIT_LOG")
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), func() { f.Close() }, nil
}

func runTUI(ctx context.Context) error {
	credPath, err := config.CredentialsPath()
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(credPath)
	if errors.Is(err, os.ErrNotExist) {
		return errors.New("not logged in; run `tikkit login` or `tikkit signup`")
	}
	if err != nil {
		return err
	}

	logger, closeLog, err := tuiLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	registry := broadcast.NewRegistry()
	hub := registry.Channel("tikkit-data")
	remote := httpstore.NewClient(creds.ServerURL, creds.Token, logger)

	gate := tui.NewGate()
	a := app.New(app.Options{
		Log:     logger,
		Remote:  remote,
		Hub:     hub,
		Confirm: gate,
	})

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = a.LoadInitial(loadCtx)
	cancel()
	if errors.Is(err, ports.ErrUnauthorized) {
		_ = config.ClearCredentials(credPath)
		return errors.New("session expired; run `tikkit login`")
	}
	if err != nil {
		return err
	}

	m := tui.New(a, gate)
	m.OnLogout = func() { _ = config.ClearCredentials(credPath) }

	p := tea.NewProgram(m, tea.WithAltScreen())
	a.OnUnauthorized = func() {
		_ = config.ClearCredentials(credPath)
		p.Send(tui.AuthExpiredMsg{})
	}

	_, err = p.Run()
	return err
}

func loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "sign in and cache the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate(cmd.Context(), email, httpstore.Login, "logged in")
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func signupCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "create an account and cache its access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate(cmd.Context(), email, httpstore.Signup, "account created")
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

type authFunc func(ctx context.Context, baseURL, email, password string) (string, error)

func authenticate(ctx context.Context, email string, fn authFunc, doneMsg string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	serverURL := cfg.Client.ServerURL

	credPath, err := config.CredentialsPath()
	if err != nil {
		return err
	}
	// A cached credential may point at a non-default server; keep using it.
	if prev, err := config.LoadCredentials(credPath); err == nil && os.Getenv("TIKKIT_SERVER_URL") == "" {
		serverURL = prev.ServerURL
	}

	if email == "" {
		email, err = promptLine("email: ")
		if err != nil {
			return err
		}
	}
	password, err := promptPassword("password: ")
	if err != nil {
		return err
	}

	token, err := fn(ctx, serverURL, email, password)
	if err != nil {
		return err
	}
	creds := &config.Credentials{ServerURL: serverURL, Email: email, Token: token}
	if err := config.SaveCredentials(credPath, creds); err != nil {
		return err
	}
	fmt.Println(doneMsg)
	return nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "discard the cached access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			credPath, err := config.CredentialsPath()
			if err != nil {
				return err
			}
			if err := config.ClearCredentials(credPath); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "print today's and this week's totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			credPath, err := config.CredentialsPath()
			if err != nil {
				return err
			}
			creds, err := config.LoadCredentials(credPath)
			if errors.Is(err, os.ErrNotExist) {
				return errors.New("not logged in; run `tikkit login`")
			}
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			client := httpstore.NewClient(creds.ServerURL, creds.Token, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ds, err := client.Load(ctx)
			if errors.Is(err, ports.ErrUnauthorized) {
				_ = config.ClearCredentials(credPath)
				return errors.New("session expired; run `tikkit login`")
			}
			if err != nil {
				return err
			}

			now := time.Now()
			today := timeutil.DayKey(now.UnixMilli())

			fmt.Printf("today  %s\n", timeutil.FormatDayLabel(today))
			var any bool
			for _, t := range ds.Tasks {
				if ms := aggregate.TaskToday(t, now); ms > 0 {
					fmt.Printf("  %-32s %10s\n", t.Name, timeutil.FormatDuration(ms))
					any = true
				}
			}
			if !any {
				fmt.Println("  no time tracked yet")
			}
			fmt.Printf("  %-32s %10s\n", "total", timeutil.FormatDuration(aggregate.AllToday(ds, now)))

			if days := aggregate.HistoryDays(ds, now); len(days) > 0 {
				fmt.Println("\nearlier this week")
				for _, day := range days {
					fmt.Printf("  %-32s %10s\n",
						timeutil.FormatDayLabel(day), timeutil.FormatDuration(aggregate.DayTotal(ds, day)))
					for _, e := range aggregate.TasksForDay(ds, day) {
						fmt.Printf("    %-30s %10s\n", e.Name, timeutil.FormatDuration(e.Ms))
					}
				}
			}
			fmt.Printf("\n%-34s %10s\n", "week total", timeutil.FormatDuration(aggregate.WeekTotal(ds, now)))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the sync server against MySQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.MySQL.DSN == "" {
				return errors.New("TIKKIT_MYSQL_DSN is required")
			}

			ctx := cmd.Context()
			if err := migrate.Run(ctx, cfg.MySQL.DSN, logger); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			store, err := mysql.NewStore(ctx, cfg.MySQL.DSN, logger)
			if err != nil {
				return fmt.Errorf("mysql: %w", err)
			}
			defer store.Close()

			srv := &server.Server{
				Log:      logger,
				Users:    store,
				TokenTTL: cfg.Server.TokenTTL,
			}
			httpSrv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", slog.String("addr", cfg.Server.Addr))
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return promptLine("")
	}
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
