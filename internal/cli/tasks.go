package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"task-manager/internal/models"
	"task-manager/internal/view"
)

var errNotLoggedIn = errors.New("not logged in: run `task-manager login` first")

func loginHint(err error) error {
	if errors.Is(err, view.ErrLoginRequired) {
		return errNotLoggedIn
	}
	return err
}

// loadView returns a controller with a freshly fetched task list.
func loadView(ctx context.Context, rootOpts *RootOptions) (*view.Controller, error) {
	api, err := rootOpts.newClient()
	if err != nil {
		return nil, err
	}
	c := view.New(api)
	if err := c.Refresh(ctx); err != nil {
		return nil, loginHint(err)
	}
	return c, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

func printTasks(w io.Writer, tasks []models.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATUS\tTITLE\tTAGS\tID")
	for i, t := range tasks {
		tags := ""
		if len(t.Tags) > 0 {
			tags = "#" + strings.Join(t.Tags, " #")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, t.Status, t.Title, tags, shortID(t.ID))
	}
	return tw.Flush()
}

func printTask(w io.Writer, verb string, t *models.Task) {
	fmt.Fprintf(w, "%s task %s: %s [%s]\n", verb, t.ID, t.Title, t.Status)
}

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		desc   string
		tags   []string
		status string
	)

	cmd := &cobra.Command{
		Use:   "add <title...>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			c := view.New(api)
			c.SetTitle(strings.Join(args, " "))
			c.SetDescription(desc)
			for _, tag := range tags {
				c.AddTag(tag)
			}
			if status != "" {
				if err := c.SetStatus(models.Status(status)); err != nil {
					return err
				}
			}
			task, err := c.Save(cmd.Context())
			if err != nil {
				return loginHint(err)
			}
			printTask(cmd.OutOrStdout(), "Added", task)
			return nil
		},
	}

	cmd.Flags().StringVarP(&desc, "desc", "d", "", "task description")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag (repeatable or comma-separated)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "initial status (pending|in-progress|completed)")
	return cmd
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadView(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			if err := c.SetFilter(view.Filter(filter)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			visible := c.Visible()
			if len(visible) == 0 {
				fmt.Fprintln(out, "No tasks found")
			} else if err := printTasks(out, visible); err != nil {
				return err
			}
			n := c.Counts()
			fmt.Fprintf(out, "\n%d total: %d pending, %d in progress, %d completed\n",
				n.Total, n.Pending, n.InProgress, n.Completed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", string(view.FilterAll), "all|pending|in-progress|completed")
	return cmd
}

func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		title      string
		desc       string
		status     string
		tags       []string
		addTags    []string
		removeTags []string
	)

	cmd := &cobra.Command{
		Use:   "update <ref>",
		Short: "Edit a task by id, short id or list position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadView(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			task, err := c.Find(args[0])
			if err != nil {
				return err
			}
			if err := c.Edit(task.ID); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("title") {
				c.SetTitle(title)
			}
			if flags.Changed("desc") {
				c.SetDescription(desc)
			}
			if flags.Changed("status") {
				if err := c.SetStatus(models.Status(status)); err != nil {
					return err
				}
			}
			if flags.Changed("tags") {
				for _, tag := range c.Draft().Tags {
					c.RemoveTag(tag)
				}
				for _, tag := range tags {
					c.AddTag(tag)
				}
			}
			for _, tag := range addTags {
				c.AddTag(tag)
			}
			for _, tag := range removeTags {
				c.RemoveTag(strings.TrimSpace(tag))
			}

			saved, err := c.Save(cmd.Context())
			if err != nil {
				return loginHint(err)
			}
			printTask(cmd.OutOrStdout(), "Updated", saved)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "new description")
	cmd.Flags().StringVarP(&status, "status", "s", "", "new status (pending|in-progress|completed)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "replace all tags")
	cmd.Flags().StringSliceVar(&addTags, "add-tag", nil, "add a tag")
	cmd.Flags().StringSliceVar(&removeTags, "remove-tag", nil, "remove a tag")
	return cmd
}

func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <ref>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadView(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			task, err := c.Find(args[0])
			if err != nil {
				return err
			}
			saved, err := c.SetTaskStatus(cmd.Context(), task.ID, models.StatusCompleted)
			if err != nil {
				return loginHint(err)
			}
			printTask(cmd.OutOrStdout(), "Completed", saved)
			return nil
		},
	}
}

func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadView(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			task, err := c.Find(args[0])
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), task.ID); err != nil {
				return loginHint(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s: %s\n", task.ID, task.Title)
			return nil
		},
	}
}
