package notify

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/sevigo/shot-warden/internal/core"
)

// BuildState is the latest build of one name at a commit, with its latest
// notification and diff counts.
type BuildState struct {
	Build        *core.Build
	Notification core.NotificationType
	Stats        DiffStats
}

// DiffStats counts the outcome of a build's screenshot diffs.
type DiffStats struct {
	Changed   int `db:"changed"`
	Added     int `db:"added"`
	Removed   int `db:"removed"`
	Unchanged int `db:"unchanged"`
}

// Aggregate combines the builds of a commit into the rollup payload. It
// reports false when summaryCheck rules out a rollup for these builds.
func Aggregate(states []BuildState, summaryCheck core.SummaryCheck) (Payload, bool, error) {
	switch summaryCheck {
	case core.SummaryCheckNever:
		return Payload{}, false, nil
	case core.SummaryCheckAlways:
		if len(states) == 0 {
			return Payload{}, false, nil
		}
	case core.SummaryCheckAuto, "":
		if len(states) < 2 {
			return Payload{}, false, nil
		}
	default:
		return Payload{}, false, core.Unretryablef("unknown summary check %q", summaryCheck)
	}

	payloads := make([]Payload, 0, len(states))
	for _, s := range states {
		p, err := PayloadFor(s.Notification, s.Build.Type)
		if err != nil {
			return Payload{}, false, err
		}
		payloads = append(payloads, p)
	}

	if pending := lo.CountBy(payloads, func(p Payload) bool { return p.GitHubState == StatePending }); pending > 0 {
		return Payload{
			Description: fmt.Sprintf("%d of %d builds in progress", pending, len(payloads)),
			GitHubState: StatePending,
			GitLabState: "running",
		}, true, nil
	}
	if failing, ok := lo.Find(payloads, Payload.Failing); ok {
		return failing, true, nil
	}
	return Payload{
		Description: fmt.Sprintf("All %d builds passed", len(payloads)),
		GitHubState: StateSuccess,
		GitLabState: "success",
	}, true, nil
}
