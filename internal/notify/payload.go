// Package notify propagates build verdicts to version-control providers as
// commit statuses and a single upserted pull request comment.
package notify

import (
	"github.com/sevigo/shot-warden/internal/core"
)

// Provider-neutral status states. GitLab states are carried separately
// because GitLab distinguishes running from pending and canceled from failed.
const (
	StatePending = "pending"
	StateSuccess = "success"
	StateFailure = "failure"
	StateError   = "error"
)

// Payload is what every provider receives for one notification.
type Payload struct {
	Description string
	GitHubState string
	GitLabState string
}

// Failing reports whether the payload marks the commit as not mergeable.
func (p Payload) Failing() bool {
	return p.GitHubState == StateFailure || p.GitHubState == StateError
}

var payloads = map[core.NotificationType]Payload{
	core.NotificationQueued:         {"Build is queued", StatePending, "pending"},
	core.NotificationProgress:       {"Build in progress...", StatePending, "running"},
	core.NotificationNoDiffDetected: {"Everything's good!", StateSuccess, "success"},
	core.NotificationDiffDetected:   {"Diff detected", StateFailure, "failed"},
	core.NotificationDiffAccepted:   {"Diff accepted", StateSuccess, "success"},
	core.NotificationDiffRejected:   {"Diff rejected", StateFailure, "failed"},
	core.NotificationError:          {"The build has failed", StateError, "failed"},
	core.NotificationAborted:        {"The build has been aborted", StateError, "canceled"},
	core.NotificationExpired:        {"The build has expired", StateError, "failed"},
}

// PayloadFor maps a notification to its payload. A detected diff on a
// reference build is approved automatically.
func PayloadFor(t core.NotificationType, buildType *core.BuildType) (Payload, error) {
	p, ok := payloads[t]
	if !ok {
		return Payload{}, core.Unretryablef("unknown notification type %q", t)
	}
	if t == core.NotificationDiffDetected && buildType != nil && *buildType == core.BuildTypeReference {
		return Payload{"Build auto-approved", StateSuccess, "success"}, nil
	}
	return p, nil
}

const (
	statusBrand        = "shotwarden"
	summaryContextName = statusBrand + "/summary"
)

// StatusContext is the commit status context of a build name.
func StatusContext(buildName string) string {
	if buildName == "default" {
		return statusBrand
	}
	return statusBrand + "/" + buildName
}

// SummaryContext is the context of the rollup status.
func SummaryContext() string { return summaryContextName }
