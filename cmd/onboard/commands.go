package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/onboard"
	"github.com/matthewjhunter/onboard/internal/config"
	"github.com/matthewjhunter/onboard/internal/output"
)

func recommendCmd() *cobra.Command {
	var limit int
	var digest bool
	var user string

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank recent items against your interest profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			recs, err := eng.Recommend(cmd.Context(), limit, time.Now())
			if err != nil {
				return err
			}
			if digest {
				return output.NewFormatter(output.FormatJSON).OutputDigest(recs, user)
			}
			return formatter.OutputRecommendations(recs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of recommendations")
	cmd.Flags().BoolVar(&digest, "digest", false, "emit a markdown digest envelope (JSON) for chat delivery")
	cmd.Flags().StringVar(&user, "user", "", "recipient recorded in the digest envelope")
	return cmd
}

func discoverCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Summarize ingested data and preview recommendations without logging them",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			rep, err := eng.Discover(cmd.Context(), limit, time.Now())
			if err != nil {
				return err
			}
			return formatter.OutputDiscover(rep)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of preview recommendations")
	return cmd
}

func topicsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Show the strongest long-term topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			topics, err := eng.Topics(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return formatter.OutputTopics(topics)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of topics")
	return cmd
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show short and long-term profile magnitudes",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			p, err := eng.Profile(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return formatter.OutputProfile(p)
		},
	}
}

func clickCmd() *cobra.Command {
	var title, sourceID string

	cmd := &cobra.Command{
		Use:   "click <url>",
		Short: "Record a click and update the interest profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.RecordClick(cmd.Context(), onboard.Click{
				URL:      args[0],
				Title:    title,
				SourceID: sourceID,
				At:       time.Now(),
			})
			if err != nil {
				return err
			}
			return formatter.OutputClick(res)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "link title")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "rec_id of the batch the link was served in")
	return cmd
}

func feedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <item-id> <up|down>",
		Short: "Nudge topic weights for an item up or down",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.Feedback(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return formatter.OutputFeedback(args[0], args[1], n)
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and run maintenance jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			var infos []output.JobInfo
			for _, name := range eng.JobNames() {
				infos = append(infos, output.JobInfo{Name: name, Description: eng.JobDescription(name)})
			}
			return formatter.OutputJobList(infos)
		},
	})

	var all bool
	run := &cobra.Command{
		Use:   "run <job>...",
		Short: "Run one or more jobs in order",
		Long: `Run maintenance jobs by name. Every named job runs even if an earlier
one fails; the command exits non-zero if any failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("name at least one job, or pass --all")
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			names := args
			if all {
				names = eng.JobNames()
			}
			results, runErr := eng.RunJobs(cmd.Context(), names, time.Now())
			if err := formatter.OutputJobResults(results); err != nil {
				return err
			}
			return runErr
		},
	}
	run.Flags().BoolVar(&all, "all", false, "run every registered job")
	cmd.AddCommand(run)

	return cmd
}

func feedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage feed subscriptions",
	}

	var name string
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Subscribe to a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.AddFeed(args[0], name); err != nil {
				return err
			}
			fmt.Printf("Subscribed to %s\n", args[0])
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "feed name, used as the item source")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <opml-file>",
		Short: "Subscribe to every feed in an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := eng.ImportOPML(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d feeds from %s\n", n, args[0])
			return nil
		},
	})

	return cmd
}

func initConfigCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file (YAML, or TOML for a .toml path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = "./config/config.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s", path)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Printf("Created default config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
