// Package grouping maps raw vendor names to vendor groups with an ordered
// rule table. Rules are checked by descending priority, then file order;
// the first match wins.
package grouping

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/errors"
)

// Rule assigns Group to vendors matching Pattern (a case-insensitive regular
// expression) or containing Contains. A rule may set either or both.
type Rule struct {
	Name     string `yaml:"name"`
	Group    string `yaml:"group"`
	Pattern  string `yaml:"pattern,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Priority int    `yaml:"priority,omitempty"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	regex    *regexp.Regexp
	contains string
}

func (r compiledRule) matches(vendor string) bool {
	if r.regex != nil && r.regex.MatchString(vendor) {
		return true
	}
	return r.contains != "" && strings.Contains(strings.ToLower(vendor), r.contains)
}

// Classifier is an immutable compiled rule table, safe for concurrent use
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles rules. An empty rule set is valid and maps every
// vendor to its normalized name.
func NewClassifier(rules []Rule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for i, r := range rules {
		if strings.TrimSpace(r.Group) == "" {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("rules[%d].group", i), r.Name, fmt.Errorf("group cannot be empty"))
		}
		if r.Pattern == "" && r.Contains == "" {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
				fmt.Sprintf("rules[%d]", i), r.Name, fmt.Errorf("rule needs a pattern or contains"))
		}

		c := compiledRule{Rule: r, contains: strings.ToLower(r.Contains)}
		if r.Pattern != "" {
			expr := r.Pattern
			if !strings.HasPrefix(expr, "(?i)") {
				expr = "(?i)" + expr
			}
			regex, err := regexp.Compile(expr)
			if err != nil {
				return nil, errors.ConfigurationError(errors.CodeInvalidConfig,
					fmt.Sprintf("rules[%d].pattern", i), r.Pattern, err)
			}
			c.regex = regex
		}
		compiled = append(compiled, c)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &Classifier{rules: compiled}, nil
}

// LoadRules reads a YAML rule file of the form
//
//	rules:
//	  - name: payroll
//	    group: Payroll
//	    pattern: "gusto|adp payroll"
//	    priority: 10
func LoadRules(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "rules", path, err)
	}
	return NewClassifier(file.Rules)
}

// Classify returns the group of the first matching rule. Unmatched vendors
// map to their normalized name and ok is false.
func (c *Classifier) Classify(vendor string) (group string, ok bool) {
	normalized := Normalize(vendor)
	for _, r := range c.rules {
		if r.matches(normalized) {
			return r.Group, true
		}
	}
	return normalized, false
}

// Assign returns a copy of txns with VendorGroup set from the rules.
// Transactions that already carry a group keep it.
func (c *Classifier) Assign(txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	for i, t := range txns {
		if t.VendorGroup == "" {
			t.VendorGroup, _ = c.Classify(t.VendorName)
		}
		out[i] = t
	}
	return out
}

// Len returns the number of rules
func (c *Classifier) Len() int {
	return len(c.rules)
}

// Normalize trims and collapses internal whitespace
func Normalize(vendor string) string {
	return strings.Join(strings.Fields(vendor), " ")
}
