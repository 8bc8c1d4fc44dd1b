package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/cli"
	"github.com/haivivi/robocare/pkg/resource"
)

var (
	replyPlay      bool
	replySaveAudio string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>...",
	Short: "Ask one question and print the answer",
	Long: `Ask Robo one question. The language is detected from the question and
the answer comes back in the same language.

Examples:
  robocare ask "What should I eat after a fever?"
  robocare ask --play "mujhe sir dard hai"
  robocare ask --save-audio reply.mp3 --format json "I cannot sleep"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return runReply(cmd.Context(), func(ctx context.Context, a *app) error {
			return a.Session.Submit(ctx, question)
		})
	},
}

var imageCmd = &cobra.Command{
	Use:   "image <path>",
	Short: "Upload a photo for analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := readImage(args[0])
		if err != nil {
			return err
		}
		slog.Debug("uploading image", "file", img.Filename, "mime", img.MIMEType, "size", cli.FormatBytes(int64(len(img.Data))))
		return runReply(cmd.Context(), func(ctx context.Context, a *app) error {
			return a.Session.SubmitImage(ctx, img)
		})
	},
}

func readImage(path string) (backend.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return backend.Image{}, fmt.Errorf("read image: %w", err)
	}
	typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if typ == "" {
		typ = http.DetectContentType(data)
	}
	if !strings.HasPrefix(typ, "image/") {
		return backend.Image{}, fmt.Errorf("%s is not an image (%s)", path, typ)
	}
	return backend.Image{Data: data, MIMEType: typ, Filename: filepath.Base(path)}, nil
}

// runReply opens a session, runs submit and prints the reply it produced.
func runReply(parent context.Context, submit func(context.Context, *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	a, err := openApp(ctx, appOptions{Notifier: stderrNotifier(), NoPlayback: !replyPlay})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	start := time.Now()
	if err := submit(ctx, a); err != nil {
		return err
	}
	elapsed := time.Since(start)

	reply, ok := lastReply(a.Session.Messages())
	if !ok {
		return errors.New("no reply")
	}
	if replySaveAudio != "" {
		if err := saveAudio(ctx, a, reply); err != nil {
			return err
		}
	}
	if replyPlay {
		if err := waitSpeaking(ctx, a.Session); err != nil {
			return err
		}
	}

	if formatOutput == "" && queryOutput == "" {
		fmt.Println(chatStyles().RenderMessage(reply))
		if IsVerbose() {
			fmt.Fprintf(os.Stderr, "answered in %s\n", cli.FormatElapsed(elapsed))
		}
		return nil
	}
	opts, err := outputOptions(cli.FormatYAML)
	if err != nil {
		return err
	}
	return cli.Output(replyView{
		Session: a.Session.ID(),
		Reply:   newMessageView(reply),
		Elapsed: cli.FormatElapsed(elapsed),
	}, opts)
}

func saveAudio(ctx context.Context, a *app, reply chatlog.Message) error {
	if reply.Audio.IsZero() {
		return errors.New("the reply has no audio")
	}
	data, err := resource.ReadAll(ctx, a.Resources, reply.Audio)
	if err != nil {
		return err
	}
	if err := cli.OutputBytes(data, replySaveAudio); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "saved %s (%s)\n", replySaveAudio, cli.FormatBytes(int64(len(data))))
	return nil
}

func init() {
	for _, c := range []*cobra.Command{askCmd, imageCmd} {
		c.Flags().BoolVar(&replyPlay, "play", false, "play the spoken reply and wait for it to finish")
		c.Flags().StringVar(&replySaveAudio, "save-audio", "", "write the spoken reply to this file")
		rootCmd.AddCommand(c)
	}
}
