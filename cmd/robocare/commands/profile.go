package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/cmd/robocare/internal/config"
	"github.com/haivivi/robocare/pkg/backend"
	"github.com/haivivi/robocare/pkg/cli"
)

var (
	profileFlags    backend.Profile
	profileExtra    map[string]string
	profileFile     string
	profileNoSubmit bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show, update or submit the health profile",
	Long: `Without flags, print the profile saved in the context.

With flags or -f, merge the given fields into the saved profile, write it
to profile.yaml and submit it to the backend. Every new session submits the
saved profile automatically.

Examples:
  robocare profile
  robocare profile --age 34 --gender female --profession nurse --goal "sleep better"
  robocare profile -f profile.yaml --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxName, dir, r, err := loadContext()
		if err != nil {
			return err
		}
		saved, _, err := loadProfile(dir)
		if err != nil {
			return err
		}

		changed := profileFile != "" || len(profileExtra) > 0
		for _, name := range []string{"age", "gender", "height", "weight", "profession", "goal"} {
			changed = changed || cmd.Flags().Changed(name)
		}
		if changed {
			if saved, err = mergeProfile(saved); err != nil {
				return err
			}
			if err := config.SaveService(dir, config.ServiceProfile, &saved); err != nil {
				return err
			}
			if !profileNoSubmit {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				b, err := newBackend(ctx, r)
				if err != nil {
					return err
				}
				if err := b.SaveProfile(ctx, saved); err != nil {
					return fmt.Errorf("submit profile: %w", err)
				}
				cli.PrintSuccess("Profile submitted.")
			} else {
				cli.PrintInfo("Profile saved to context %q; it is submitted when a session opens.", ctxName)
			}
		}

		opts, err := outputOptions(cli.FormatYAML)
		if err != nil {
			return err
		}
		return cli.Output(saved, opts)
	},
}

// mergeProfile overlays the file and flag values on p.
func mergeProfile(p backend.Profile) (backend.Profile, error) {
	if profileFile != "" {
		var f backend.Profile
		if err := cli.LoadFile(profileFile, &f); err != nil {
			return p, err
		}
		p = overlay(p, f)
	}
	p = overlay(p, profileFlags)
	for k, v := range profileExtra {
		if p.Extra == nil {
			p.Extra = map[string]string{}
		}
		p.Extra[k] = v
	}
	return p, nil
}

func overlay(dst, src backend.Profile) backend.Profile {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Age, src.Age)
	set(&dst.Gender, src.Gender)
	set(&dst.Height, src.Height)
	set(&dst.Weight, src.Weight)
	set(&dst.Profession, src.Profession)
	set(&dst.Goal, src.Goal)
	for k, v := range src.Extra {
		if dst.Extra == nil {
			dst.Extra = map[string]string{}
		}
		dst.Extra[k] = v
	}
	return dst
}

func init() {
	f := profileCmd.Flags()
	f.StringVar(&profileFlags.Age, "age", "", "age")
	f.StringVar(&profileFlags.Gender, "gender", "", "gender")
	f.StringVar(&profileFlags.Height, "height", "", "height")
	f.StringVar(&profileFlags.Weight, "weight", "", "weight")
	f.StringVar(&profileFlags.Profession, "profession", "", "profession")
	f.StringVar(&profileFlags.Goal, "goal", "", "health goal")
	f.StringToStringVar(&profileExtra, "set", nil, "extra profile fields (key=value)")
	f.StringVarP(&profileFile, "file", "f", "", "profile file (YAML or JSON)")
	f.BoolVar(&profileNoSubmit, "no-submit", false, "save without submitting to the backend")

	rootCmd.AddCommand(profileCmd)
}
