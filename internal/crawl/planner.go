package crawl

import (
	"net/url"
	"strings"
)

// Config bounds one crawl request. Zero values fall back to server defaults
// before the planner runs.
type Config struct {
	MaxDepth        int
	MaxPages        int
	SameDomainOnly  bool
	AllowSubdomains bool
	RateLimitPerSec float64
	IncludePaths    []string
	ExcludePaths    []string
}

// Plan normalizes, deduplicates and filters the seed URLs, truncating the
// result at MaxPages. The planner performs no network I/O; expansion beyond
// the seed list (BFS link following) is intentionally not implemented.
func Plan(seeds []string, cfg Config) []string {
	plan := make([]string, 0, len(seeds))
	seen := make(map[string]struct{})
	baseHost := ""
	for _, seed := range seeds {
		normalized, host, ok := Normalize(seed)
		if !ok {
			continue
		}
		if baseHost == "" {
			baseHost = host
		}
		if cfg.SameDomainOnly && !domainAllowed(host, baseHost, cfg.AllowSubdomains) {
			continue
		}
		if !pathAllowed(normalized, cfg.IncludePaths, cfg.ExcludePaths) {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		plan = append(plan, normalized)
		if cfg.MaxPages > 0 && len(plan) >= cfg.MaxPages {
			break
		}
	}
	return plan
}

// Normalize reduces a URL to scheme://host/path without query or fragment,
// trimming the trailing slash. Returns ok=false for unparsable or non-http
// URLs.
func Normalize(raw string) (normalized string, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}
	host = strings.ToLower(u.Hostname())
	normalized = strings.TrimRight(u.Scheme+"://"+strings.ToLower(u.Host)+u.Path, "/")
	return normalized, host, true
}

func domainAllowed(host, base string, allowSubdomains bool) bool {
	if host == base {
		return true
	}
	if allowSubdomains && strings.HasSuffix(host, "."+base) {
		return true
	}
	return false
}

func pathAllowed(normalized string, include, exclude []string) bool {
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	for _, prefix := range exclude {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, prefix := range include {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
