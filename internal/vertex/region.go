package vertex

import (
	"fmt"
	"path"
	"strings"
)

// RegionRule routes model identifiers matching a glob pattern to a region.
type RegionRule struct {
	Pattern string
	Region  string
}

// RegionResolver maps a model identifier to a target region. Rules are tried
// in declaration order and the first match wins; unmatched identifiers fall
// back to the default region. The resolver holds no mutable state and is safe
// for concurrent use.
type RegionResolver struct {
	rules         []RegionRule
	defaultRegion string
}

// NewRegionResolver builds a resolver over an ordered rule list.
func NewRegionResolver(rules []RegionRule, defaultRegion string) *RegionResolver {
	return &RegionResolver{rules: rules, defaultRegion: defaultRegion}
}

// ParseRegionRules parses the "pattern=region,pattern=region" override format.
// Patterns use case-sensitive glob semantics (* and ? wildcards) and may carry
// or omit the publisher namespace; matching always runs on the bare name.
func ParseRegionRules(s string) ([]RegionRule, error) {
	var rules []RegionRule
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pattern, region, ok := strings.Cut(entry, "=")
		pattern = strings.TrimSpace(pattern)
		region = strings.TrimSpace(region)
		if !ok || pattern == "" || region == "" {
			return nil, fmt.Errorf("invalid region override %q, want pattern=region", entry)
		}
		pattern = StripPublisher(pattern)
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid region override pattern %q: %w", pattern, err)
		}
		rules = append(rules, RegionRule{Pattern: pattern, Region: region})
	}
	return rules, nil
}

// Resolve returns the region for a model identifier.
func (r *RegionResolver) Resolve(model string) string {
	name := StripPublisher(model)
	for _, rule := range r.rules {
		if ok, _ := path.Match(rule.Pattern, name); ok {
			return rule.Region
		}
	}
	return r.defaultRegion
}

// DefaultRegion returns the fallback region.
func (r *RegionResolver) DefaultRegion() string {
	return r.defaultRegion
}
