package baseline

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// Rule skips builds matching all of its non-empty fields. BuildName and
// Branch are path.Match globs, so "*" does not cross a "/".
type Rule struct {
	Project   string `yaml:"project"`
	BuildName string `yaml:"buildName"`
	Branch    string `yaml:"branch"`
}

func (r Rule) String() string {
	return fmt.Sprintf("project=%q buildName=%q branch=%q", r.Project, r.BuildName, r.Branch)
}

func (r Rule) matches(project, buildName, branch string) bool {
	if r.Project != "" && r.Project != project {
		return false
	}
	return glob(r.BuildName, buildName) && glob(r.Branch, branch)
}

func glob(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, _ := path.Match(pattern, value)
	return ok
}

// Rules is the automation file consulted before every resolution.
type Rules struct {
	Skip []Rule `yaml:"skip"`
}

// Match returns the first skip rule matching the build.
func (r *Rules) Match(project, buildName, branch string) (Rule, bool) {
	for _, rule := range r.Skip {
		if rule.matches(project, buildName, branch) {
			return rule, true
		}
	}
	return Rule{}, false
}

// ParseRules decodes a rules document and checks every glob.
func ParseRules(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	for i, rule := range rules.Skip {
		if rule == (Rule{}) {
			return nil, fmt.Errorf("skip rule %d matches every build", i)
		}
		for _, p := range []string{rule.BuildName, rule.Branch} {
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("skip rule %d: bad pattern %q: %w", i, p, err)
			}
		}
	}
	return &rules, nil
}

// LoadRules reads a rules file. An empty path yields no rules.
func LoadRules(file string) (*Rules, error) {
	if file == "" {
		return &Rules{}, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}
