package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/adisho1992/phlay/phlay"
	"github.com/adisho1992/phlay/phlay/usererr"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "phlay [revspec]",
	Short: "push local commits as review revisions and embed the review links",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// potentially enable profiling
		p, _ := cmd.Flags().GetString("profile")
		if p != "" {
			switch p {
			case "cpu":
				defer profile.Start(profile.CPUProfile, profile.Quiet).Stop()
			case "mem":
				defer profile.Start(profile.MemProfile, profile.Quiet).Stop()
			case "trace":
				defer profile.Start(profile.TraceProfile, profile.Quiet).Stop()
			default:
				panic("unexpected profile: " + p)
			}
		}

		revspec := "HEAD"
		if len(args) == 1 {
			revspec = args[0]
		}
		repoDir, _ := cmd.Flags().GetString("repo")
		if repoDir == "" {
			repoDir, _ = os.Getwd()
		}
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("CONDUIT_TOKEN")
		}
		uri, _ := cmd.Flags().GetString("uri")
		bugzilla, _ := cmd.Flags().GetString("bugzilla")
		ref, _ := cmd.Flags().GetString("ref")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		started := time.Now()
		s := phlay.New(phlay.Opts{
			RepoDir:      repoDir,
			Ref:          ref,
			Revspec:      revspec,
			ConduitURI:   uri,
			ConduitToken: token,
			BugzillaURL:  bugzilla,
			DryRun:       dryRun,
		})
		if err := s.Run(ctx); err != nil {
			if usererr.Is(err) {
				fmt.Fprintln(os.Stderr, color.RedString("%v", err))
			} else {
				fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
			}
			os.Exit(1)
		}
		fmt.Printf("finished in %v\n", time.Since(started))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Flags().String("repo", "", "git repo to operate on, defaults to the working directory")
	rootCmd.Flags().String("ref", "HEAD", "ref to rewrite after pushing")
	rootCmd.Flags().String("uri", "", "review service base URI")
	rootCmd.Flags().String("token", "", "conduit API token, defaults to $CONDUIT_TOKEN")
	rootCmd.Flags().String("bugzilla", "", "bug tracker base URL for bug number validation")
	rootCmd.Flags().Bool("dry-run", false, "plan and print without touching the review service")
	rootCmd.Flags().String("profile", "", "one of cpu, mem, trace or empty to disable")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
