package notify

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/sevigo/shot-warden/internal/core"
)

const commentFooter = "<sub>Updated %s (UTC)</sub>"

// StatusLabel is the comment label of a build's latest notification.
func StatusLabel(t core.NotificationType, buildType *core.BuildType) string {
	switch t {
	case core.NotificationQueued:
		return "📭 Waiting for screenshots"
	case core.NotificationProgress:
		return "🚜 Diffing screenshots"
	case core.NotificationNoDiffDetected:
		return "✅ No change detected"
	case core.NotificationDiffDetected:
		if buildType != nil && *buildType == core.BuildTypeReference {
			return "👍 Changes approved"
		}
		return "🧿 Changes detected"
	case core.NotificationDiffAccepted:
		return "👍 Changes approved"
	case core.NotificationDiffRejected:
		return "👎 Changes rejected"
	case core.NotificationError:
		return "❌ An error happened"
	case core.NotificationAborted:
		return "🙅 Build aborted"
	case core.NotificationExpired:
		return "💀 Build expired"
	default:
		return string(t)
	}
}

// Details summarizes the diff counts of a build.
func (s DiffStats) Details() string {
	parts := lo.Compact([]string{
		countLabel(s.Changed, "changed"),
		countLabel(s.Added, "added"),
		countLabel(s.Removed, "removed"),
	})
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func countLabel(n int, what string) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d %s", n, what)
}

// RenderComment renders the pull request comment for the builds of a commit.
func RenderComment(states []BuildState, baseURL string, now time.Time) string {
	sorted := append([]BuildState(nil), states...)
	slices.SortStableFunc(sorted, func(a, b BuildState) int {
		return strings.Compare(a.Build.Name, b.Build.Name)
	})

	var sb strings.Builder
	sb.WriteString("| Build name | Status | Details | Inspect |\n")
	sb.WriteString("| :--------- | :----- | :------ | :------ |\n")
	for _, s := range sorted {
		fmt.Fprintf(&sb, "| %s | %s | %s | [Inspect](%s) |\n",
			escapeCell(s.Build.Name),
			StatusLabel(s.Notification, s.Build.Type),
			s.Stats.Details(),
			BuildURL(baseURL, s.Build.ID),
		)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, commentFooter, now.UTC().Format("Jan 2, 2006, 3:04 PM"))
	return sb.String()
}

// BuildURL links to the build page of the dashboard.
func BuildURL(baseURL string, buildID int64) string {
	return fmt.Sprintf("%s/builds/%d", strings.TrimRight(baseURL, "/"), buildID)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
