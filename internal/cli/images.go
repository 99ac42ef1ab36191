package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	imagesTask      string
	imagesOlderThan string
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Manage the task image cache",
	Long: `Images embedded in task pages are downloaded into a local cache so
prompts can point the agent at them. These commands inspect and clean it.`,
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached images, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Images == nil {
			return fmt.Errorf("image cache not initialized")
		}
		entries, err := Images.Entries(commandContext(cmd), imagesTask)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No cached images.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %-36s %8d  %s\n",
				e.FetchedAt.Format("2006-01-02 15:04"), e.TaskID, e.Bytes, e.Path)
		}
		fmt.Fprintf(out, "\n%d image(s) in %s\n", len(entries), Images.Dir())
		return nil
	},
}

var imagesFetchCmd = &cobra.Command{
	Use:   "fetch <task-id>",
	Short: "Download the images of one task into the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Images == nil {
			return fmt.Errorf("image cache not initialized")
		}
		if err := requireStore(); err != nil {
			return err
		}
		ctx := commandContext(cmd)

		task, err := Store.GetTask(ctx, args[0])
		if err != nil {
			return fmt.Errorf("getting task %s: %w", args[0], err)
		}
		paths := Images.FetchTaskImages(ctx, task)

		out := cmd.OutOrStdout()
		for _, p := range paths {
			fmt.Fprintln(out, p)
		}
		fmt.Fprintf(out, "%d image(s) for %q\n", len(paths), task.Title)
		return nil
	},
}

var imagesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached images older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Images == nil {
			return fmt.Errorf("image cache not initialized")
		}
		cutoff, err := parseSinceDuration(imagesOlderThan)
		if err != nil {
			return fmt.Errorf("parsing --older-than: %w", err)
		}
		n, err := Images.Prune(commandContext(cmd), cutoff)
		if err != nil {
			return fmt.Errorf("pruning image cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d image(s) fetched before %s.\n", n, cutoff.Format(time.RFC3339))
		return nil
	},
}

func init() {
	imagesListCmd.Flags().StringVar(&imagesTask, "task", "", "Only list images of this task")
	imagesPruneCmd.Flags().StringVar(&imagesOlderThan, "older-than", "30d", "Age of images to delete (e.g. 30d, 12h)")
	imagesCmd.AddCommand(imagesListCmd)
	imagesCmd.AddCommand(imagesFetchCmd)
	imagesCmd.AddCommand(imagesPruneCmd)
	rootCmd.AddCommand(imagesCmd)
}
