package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/cli"
	"github.com/haivivi/robocare/pkg/hostio"
)

const chatHelp = `Type a message and press enter to send it.
  /mic            start or stop dictation; typed lines are dictated while on
  /send           send the dictated transcript
  /lang <name>    switch language (english, hindi, kannada, tamil, telugu, malayalam)
  /image <path>   send a photo for analysis
  /play <id>      play or pause the audio of a reply
  /history        show the whole conversation
  /profile        show the submitted profile
  /status         show language and activity
  /quit           leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation with Robo",
	Long:  "Start an interactive conversation with Robo.\n\n" + chatHelp,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt)
		defer stop()

		d := hostio.NewDictation()
		a, err := openApp(ctx, appOptions{Greeting: true, Recognizer: d, Notifier: stderrNotifier()})
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		r := newREPL(a, d, os.Stdout)
		return r.run(ctx, os.Stdin)
	},
}

// repl reads commands line by line and prints new messages after each.
type repl struct {
	app       *app
	dictation *hostio.Dictation
	out       io.Writer
	styles    cli.ChatStyles
	last      chatlog.ID
}

func newREPL(a *app, d *hostio.Dictation, out io.Writer) *repl {
	return &repl{app: a, dictation: d, out: out, styles: chatStyles()}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, r.styles.Meta.Render("Type /help for commands."))
	r.flush()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		quit, err := r.handle(ctx, sc.Text())
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		r.flush()
		if quit || ctx.Err() != nil {
			return nil
		}
	}
	return sc.Err()
}

// flush prints terminal messages not printed yet.
func (r *repl) flush() {
	for _, m := range r.app.Session.Messages() {
		if m.ID <= r.last || m.Pending {
			continue
		}
		fmt.Fprintln(r.out, r.styles.RenderMessage(m))
		r.last = m.ID
	}
}

func (r *repl) status() {
	fmt.Fprintln(r.out, r.styles.RenderStatus(r.app.Session.State()))
}

func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	s := r.app.Session
	if !strings.HasPrefix(line, "/") {
		if r.dictation.Feed(line) {
			r.status()
			return false, nil
		}
		return false, s.Submit(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/mic":
		if err := s.ToggleMic(ctx); err != nil {
			return false, err
		}
		r.status()
	case "/send":
		return false, s.SubmitTranscript(ctx)
	case "/lang":
		if err := s.SelectLanguage(ctx, arg); err != nil {
			return false, err
		}
		r.status()
	case "/image":
		img, err := readImage(arg)
		if err != nil {
			return false, err
		}
		return false, s.SubmitImage(ctx, img)
	case "/play":
		id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
		if err != nil {
			return false, fmt.Errorf("usage: /play <message id>")
		}
		m, ok := s.Message(chatlog.ID(id))
		if !ok || m.Audio.IsZero() {
			return false, fmt.Errorf("message #%d has no audio", id)
		}
		return false, s.ToggleAudio(ctx, m.Audio)
	case "/history":
		fmt.Fprintln(r.out, r.styles.RenderMessages(s.Messages()))
	case "/profile":
		p, ok := s.Profile()
		if !ok {
			fmt.Fprintln(r.out, "No profile submitted. Use 'robocare profile --age ...' to save one.")
			return false, nil
		}
		return false, cli.Output(p, cli.OutputOptions{Format: cli.FormatYAML, Writer: r.out})
	case "/status":
		r.status()
	default:
		return false, fmt.Errorf("unknown command %s; try /help", cmd)
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
