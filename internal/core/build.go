// Package core defines the essential interfaces and data structures that form the
// backbone of the pipeline. Builds, buckets, screenshots and diffs are plain
// structs mapped onto database rows; the collaborators they need are interfaces.
package core

import (
	"errors"
	"fmt"
	"time"
)

// BuildMode selects which baseline-resolution regime applies to a build.
type BuildMode string

const (
	BuildModeCI         BuildMode = "ci"
	BuildModeMonitoring BuildMode = "monitoring"
)

// BuildType is the outcome of baseline resolution.
type BuildType string

const (
	BuildTypeReference BuildType = "reference"
	BuildTypeCheck     BuildType = "check"
	BuildTypeOrphan    BuildType = "orphan"
	BuildTypeSkipped   BuildType = "skipped"
)

// Conclusion is set once every diff of a build is complete.
type Conclusion string

const (
	ConclusionNoChanges       Conclusion = "no-changes"
	ConclusionChangesDetected Conclusion = "changes-detected"
)

// Provider identifies the version-control host of a project.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// SummaryCheck controls when the project-level rollup status is posted.
type SummaryCheck string

const (
	SummaryCheckAuto   SummaryCheck = "auto"
	SummaryCheckAlways SummaryCheck = "always"
	SummaryCheckNever  SummaryCheck = "never"
)

// Project owns builds and carries the repository coordinates used for notifications.
type Project struct {
	ID              int64        `db:"id"`
	Name            string       `db:"name"`
	Provider        Provider     `db:"provider"`
	RepoOwner       string       `db:"repo_owner"`
	RepoName        string       `db:"repo_name"`
	GitLabProjectID int64        `db:"gitlab_project_id"`
	InstallationID  int64        `db:"installation_id"`
	ReferenceBranch string       `db:"reference_branch"`
	SummaryCheck    SummaryCheck `db:"summary_check"`
}

// FullName returns "owner/repo".
func (p *Project) FullName() string {
	return p.RepoOwner + "/" + p.RepoName
}

// Build is one compare run.
type Build struct {
	ID                     int64       `db:"id"`
	ProjectID              int64       `db:"project_id"`
	Name                   string      `db:"name"`
	Mode                   BuildMode   `db:"mode"`
	JobStatus              JobStatus   `db:"job_status"`
	Conclusion             *Conclusion `db:"conclusion"`
	Type                   *BuildType  `db:"type"`
	BaseBucketID           *int64      `db:"base_bucket_id"`
	CompareBucketID        int64       `db:"compare_bucket_id"`
	BaseBranch             *string     `db:"base_branch"`
	BaseBranchResolvedFrom *string     `db:"base_branch_resolved_from"`
	ExternalID             *string     `db:"external_id"`
	ShardCount             *int        `db:"shard_count"`
	PRNumber               *int        `db:"pr_number"`
	CreatedAt              time.Time   `db:"created_at"`
}

// Validate checks the bucket invariants of a build whose type has been resolved.
func (b *Build) Validate() error {
	if b.CompareBucketID == 0 {
		return errors.New("build has no compare bucket")
	}
	if b.Type == nil {
		return nil
	}
	noBase := *b.Type == BuildTypeReference || *b.Type == BuildTypeOrphan
	if noBase && b.BaseBucketID != nil {
		return fmt.Errorf("build of type %s must not have a base bucket", *b.Type)
	}
	if *b.Type == BuildTypeCheck && b.BaseBucketID == nil {
		return fmt.Errorf("build of type %s requires a base bucket", *b.Type)
	}
	return nil
}

// IsReference reports whether the build was resolved as a reference build.
func (b *Build) IsReference() bool {
	return b.Type != nil && *b.Type == BuildTypeReference
}

// ScreenshotBucket is the set of artifacts uploaded for one commit and build name.
type ScreenshotBucket struct {
	ID              int64     `db:"id"`
	ProjectID       int64     `db:"project_id"`
	Name            string    `db:"name"`
	Commit          string    `db:"commit"`
	Branch          string    `db:"branch"`
	Mode            BuildMode `db:"mode"`
	Complete        bool      `db:"complete"`
	ScreenshotCount int       `db:"screenshot_count"`
	CreatedAt       time.Time `db:"created_at"`
}

// BucketQuery selects complete buckets that can serve as the baseline of a build.
type BucketQuery struct {
	ProjectID int64
	Name      string
	Mode      BuildMode
	Branch    string
	// ExcludeID keeps the compare bucket out of its own baseline.
	ExcludeID int64
}

// Screenshot links a named test to a content-addressed file within a bucket.
type Screenshot struct {
	ID       int64  `db:"id"`
	BucketID int64  `db:"bucket_id"`
	TestID   *int64 `db:"test_id"`
	Name     string `db:"name"`
	FileID   *int64 `db:"file_id"`
	BlobKey  string `db:"blob_key"`
}

// FileType distinguishes uploaded screenshots from computed diff artifacts.
type FileType string

const (
	FileTypeScreenshot     FileType = "screenshot"
	FileTypeScreenshotDiff FileType = "screenshotDiff"
)

// File is a content-addressed blob reference.
type File struct {
	ID          int64    `db:"id"`
	Key         string   `db:"key"`
	ContentType string   `db:"content_type"`
	Width       *int     `db:"width"`
	Height      *int     `db:"height"`
	Fingerprint *string  `db:"fingerprint"`
	Type        FileType `db:"type"`
}

// Test is the stable identity of a screenshot name within a project and build name.
type Test struct {
	ID        int64  `db:"id"`
	ProjectID int64  `db:"project_id"`
	BuildName string `db:"build_name"`
	Name      string `db:"name"`
}

// ValidationStatus is the human verdict on a diff.
type ValidationStatus string

const (
	ValidationUnknown  ValidationStatus = "unknown"
	ValidationAccepted ValidationStatus = "accepted"
	ValidationRejected ValidationStatus = "rejected"
)

// ScreenshotDiff compares a base and a compare screenshot of the same test.
// A nil base means the screenshot was added, a nil compare that it was removed.
type ScreenshotDiff struct {
	ID                  int64            `db:"id"`
	BuildID             int64            `db:"build_id"`
	BaseScreenshotID    *int64           `db:"base_screenshot_id"`
	CompareScreenshotID *int64           `db:"compare_screenshot_id"`
	TestID              *int64           `db:"test_id"`
	Score               *float64         `db:"score"`
	DiffFileID          *int64           `db:"diff_file_id"`
	DiffKey             *string          `db:"diff_key"`
	JobStatus           JobStatus        `db:"job_status"`
	ValidationStatus    ValidationStatus `db:"validation_status"`
	Fingerprint         *string          `db:"fingerprint"`
	Group               *string          `db:"group_key"`
}

// Changed reports whether the diff carries a non-zero score.
func (d *ScreenshotDiff) Changed() bool {
	return d.Score != nil && *d.Score > 0
}

// DiffOutcome is the scored result written back to a diff.
type DiffOutcome struct {
	Score       float64
	DiffKey     *string
	DiffFileID  *int64
	Fingerprint *string
}

// IgnoredChange suppresses diffs with a matching fingerprint for a test.
type IgnoredChange struct {
	ProjectID   int64  `db:"project_id"`
	TestID      int64  `db:"test_id"`
	Fingerprint string `db:"fingerprint"`
}

// PullRequest tracks the single upserted comment posted on a pull request.
type PullRequest struct {
	ID             int64  `db:"id"`
	ProjectID      int64  `db:"project_id"`
	Number         int    `db:"number"`
	CommentID      *int64 `db:"comment_id"`
	CommentDeleted bool   `db:"comment_deleted"`
	Merged         bool   `db:"merged"`
	State          string `db:"state"`
}
