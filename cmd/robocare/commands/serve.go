package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/pkg/cli"
	"github.com/haivivi/robocare/pkg/wsbridge"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a session to browsers over a websocket",
	Long: `Open a session and expose it on /ws. Browsers receive state snapshots and
send actions (text, image, mic, language, audio, profile). Reply audio and
image previews are served from /resources/{id}. Browsers are the audio
output: they receive player frames (play, pause, stop) and report the end
of playback with ended or failed actions.

Examples:
  robocare serve
  robocare -c clinic serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		player := wsbridge.NewPlayer()
		a, err := openApp(ctx, appOptions{Greeting: true, Player: player})
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		bridge := wsbridge.New(a.Session, nil, slog.Default())
		bridge.AttachPlayer(player)
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           bridge,
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		if !loopback(serveAddr) {
			cli.PrintWarning("%s is reachable from other hosts; /ws accepts any origin", serveAddr)
		}
		cli.PrintInfo("Serving session %s (context %s) on %s/ws", a.Session.ID(), a.Context, serveAddr)

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		bridge.Close()
		return srv.Shutdown(shutdownCtx)
	},
}

// loopback reports whether addr listens on a loopback interface only.
func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}
