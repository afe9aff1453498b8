package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sevigo/shot-warden/internal/core"
	"github.com/sevigo/shot-warden/internal/notify"
	"github.com/sevigo/shot-warden/internal/wire"
)

var rawComment bool

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("33")).Padding(0, 1)
	rowStyles  = map[string]lipgloss.Style{
		"changed":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"added":     lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		"removed":   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		"unchanged": lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"pending":   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
)

var commentCmd = &cobra.Command{
	Use:   "comment <build-id>",
	Short: "Renders the pull request comment for the commit of a build",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid build id %q", args[0])
		}
		ctx := context.Background()
		tk, cleanup, err := wire.InitializeToolkit(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize toolkit: %w", err)
		}
		defer cleanup()

		build, err := tk.Store.GetBuild(ctx, id)
		if err != nil {
			return describeLoadError("build", id, err)
		}
		bucket, err := tk.Store.GetBucket(ctx, build.CompareBucketID)
		if err != nil {
			return describeLoadError("bucket", build.CompareBucketID, err)
		}
		states, err := tk.Store.BuildStatesAtCommit(ctx, build.ProjectID, bucket.Commit)
		if err != nil {
			return err
		}

		body := notify.RenderComment(states, tk.Config.App.BaseURL, time.Now())
		if rawComment {
			fmt.Println(body)
			return nil
		}
		out, err := glamour.Render(body, "dark")
		if err != nil {
			return fmt.Errorf("failed to render comment: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <build-id>",
	Short: "Shows a build and the state of its screenshot diffs",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid build id %q", args[0])
		}
		ctx := context.Background()
		tk, cleanup, err := wire.InitializeToolkit(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize toolkit: %w", err)
		}
		defer cleanup()

		build, err := tk.Store.GetBuild(ctx, id)
		if err != nil {
			return describeLoadError("build", id, err)
		}
		diffs, err := tk.Store.ListDiffs(ctx, id)
		if err != nil {
			return err
		}
		fmt.Println(renderBuild(build, diffs))
		return nil
	},
}

func renderBuild(b *core.Build, diffs []core.ScreenshotDiff) string {
	field := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render(label), valueStyle.Render(value))
	}
	orDash := func(v *string) string {
		if v == nil {
			return "-"
		}
		return *v
	}

	conclusion, buildType := "-", "-"
	if b.Conclusion != nil {
		conclusion = string(*b.Conclusion)
	}
	if b.Type != nil {
		buildType = string(*b.Type)
	}
	base := "-"
	if b.BaseBucketID != nil {
		base = strconv.FormatInt(*b.BaseBucketID, 10)
	}

	header := lipgloss.JoinVertical(lipgloss.Left,
		field("build", fmt.Sprintf("#%d %s", b.ID, b.Name)),
		field("mode", string(b.Mode)),
		field("status", string(b.JobStatus)),
		field("type", buildType),
		field("conclusion", conclusion),
		field("base bucket", base),
		field("compare", strconv.FormatInt(b.CompareBucketID, 10)),
		field("base branch", orDash(b.BaseBranch)),
		field("resolved by", orDash(b.BaseBranchResolvedFrom)),
	)

	counts := map[string]int{}
	rows := make([]string, 0, len(diffs))
	for _, d := range diffs {
		kind := diffKind(d)
		counts[kind]++
		score := "-"
		if d.Score != nil {
			score = fmt.Sprintf("%.4f", *d.Score)
		}
		rows = append(rows, rowStyles[kind].Render(fmt.Sprintf("%-6d %-10s %-9s %-8s %s", d.ID, kind, d.JobStatus, score, orDash(d.Group))))
	}

	var summary []string
	for _, kind := range []string{"changed", "added", "removed", "unchanged", "pending"} {
		if counts[kind] > 0 {
			summary = append(summary, rowStyles[kind].Render(fmt.Sprintf("%d %s", counts[kind], kind)))
		}
	}

	parts := []string{header, ""}
	if len(rows) == 0 {
		parts = append(parts, labelStyle.Render("no diffs"))
	} else {
		parts = append(parts, labelStyle.UnsetWidth().Render(fmt.Sprintf("%-6s %-10s %-9s %-8s %s", "id", "kind", "status", "score", "group")))
		parts = append(parts, rows...)
		parts = append(parts, "", strings.Join(summary, "  "))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func diffKind(d core.ScreenshotDiff) string {
	switch {
	case d.BaseScreenshotID == nil:
		return "added"
	case d.CompareScreenshotID == nil:
		return "removed"
	case d.Score == nil:
		return "pending"
	case d.Changed():
		return "changed"
	default:
		return "unchanged"
	}
}

func describeLoadError(what string, id int64, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%s %d does not exist", what, id)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}

func init() { //nolint:gochecknoinits // Cobra command registration
	commentCmd.Flags().BoolVar(&rawComment, "raw", false, "Print the markdown without rendering it")
	rootCmd.AddCommand(commentCmd, inspectCmd)
}
