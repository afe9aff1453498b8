package gitutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// scpLike matches git@host:owner/repo.git.
var scpLike = regexp.MustCompile(`^[\w.-]+@([\w.-]+):(.+)$`)

// ParseRemote extracts the repository path from a git remote URL and splits
// it into owner and repo. Nested GitLab groups stay in owner.
// Supported formats: https://host/owner/repo(.git), ssh://git@host/owner/repo.git
// and git@host:owner/repo.git.
func ParseRemote(remote string) (owner, repo string, err error) {
	remote = strings.TrimSpace(remote)

	var p string
	if m := scpLike.FindStringSubmatch(remote); m != nil {
		p = m[2]
	} else {
		u, perr := url.Parse(remote)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("invalid remote URL format: %s", remote)
		}
		p = u.Path
	}

	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	i := strings.LastIndex(p, "/")
	if i <= 0 || i == len(p)-1 {
		return "", "", fmt.Errorf("remote URL has no owner/repo path: %s", remote)
	}
	return p[:i], p[i+1:], nil
}
