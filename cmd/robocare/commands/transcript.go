package commands

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/pkg/chatlog"
	"github.com/haivivi/robocare/pkg/cli"
)

var transcriptCmd = &cobra.Command{
	Use:     "transcript",
	Aliases: []string{"history"},
	Short:   "List and show saved conversations",
}

type sessionSummary struct {
	Session  string    `json:"session" yaml:"session"`
	Messages int       `json:"messages" yaml:"messages"`
	Started  time.Time `json:"started" yaml:"started"`
	Updated  time.Time `json:"updated" yaml:"updated"`
	First    string    `json:"first,omitempty" yaml:"first,omitempty"`
}

func summarize(id string, ms []chatlog.Message) sessionSummary {
	s := sessionSummary{Session: id, Messages: len(ms)}
	if len(ms) > 0 {
		s.Started = ms[0].CreatedAt
		s.Updated = ms[len(ms)-1].CreatedAt
	}
	for _, m := range ms {
		if m.Sender == chatlog.SenderUser {
			s.First = newMessageView(m).Text
			if s.First == "" {
				s.First = "[image]"
			}
			break
		}
	}
	return s
}

// withJournal opens the journal of the selected context for fn.
func withJournal(fn func(context.Context, *chatlog.Journal) error) error {
	_, dir, r, err := loadContext()
	if err != nil {
		return err
	}
	journal, store, err := openJournal(r, dir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), journal)
}

var transcriptListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved sessions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(ctx context.Context, j *chatlog.Journal) error {
			ids, err := j.Sessions(ctx)
			if err != nil {
				return err
			}
			summaries := make([]sessionSummary, 0, len(ids))
			for _, id := range ids {
				ms, err := j.Load(ctx, id)
				if err != nil {
					return fmt.Errorf("load %s: %w", id, err)
				}
				summaries = append(summaries, summarize(id, ms))
			}
			slices.SortFunc(summaries, func(a, b sessionSummary) int {
				return b.Updated.Compare(a.Updated)
			})

			opts, err := outputOptions(cli.FormatYAML)
			if err != nil {
				return err
			}
			return cli.Output(summaries, opts)
		})
	},
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show the messages of a session",
	Long: `Show the messages of a saved session. Without --format or --query the
conversation is rendered for the terminal.

Examples:
  robocare transcript show 5f0c...
  robocare transcript show 5f0c... --format json --query '[.[] | select(.sender == "bot") | .text]'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(ctx context.Context, j *chatlog.Journal) error {
			ms, err := j.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if len(ms) == 0 {
				return fmt.Errorf("session %q not found", args[0])
			}
			if formatOutput == "" && queryOutput == "" {
				fmt.Println(chatStyles().RenderMessages(ms))
				return nil
			}
			opts, err := outputOptions(cli.FormatYAML)
			if err != nil {
				return err
			}
			return cli.Output(messageViews(ms), opts)
		})
	},
}

var transcriptDeleteCmd = &cobra.Command{
	Use:     "delete <session>",
	Aliases: []string{"rm"},
	Short:   "Delete a saved session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(ctx context.Context, j *chatlog.Journal) error {
			if err := j.Delete(ctx, args[0]); err != nil {
				return err
			}
			cli.PrintSuccess("Session %s deleted.", args[0])
			return nil
		})
	},
}

func init() {
	transcriptCmd.AddCommand(transcriptListCmd)
	transcriptCmd.AddCommand(transcriptShowCmd)
	transcriptCmd.AddCommand(transcriptDeleteCmd)
	rootCmd.AddCommand(transcriptCmd)
}
