package plan

import (
	"net/url"
	"regexp"
	"strings"
)

// dynamicPageDomains is the small closed set of domains whose pages are
// JS-rendered and so need a headless browser rather than a plain GET to
// produce useful text.
var dynamicPageDomains = map[string]struct{}{
	"twitter.com":  {},
	"x.com":        {},
	"reddit.com":   {},
	"instagram.com": {},
	"linkedin.com": {},
}

var bareURLRe = regexp.MustCompile(`\bhttps?://[^\s<>"')\]]+`)

// InjectWebFetch appends a web_fetch action for the first bare URL found in
// message, provided p does not already contain one. It must only be called
// after ParsePlan has succeeded and before the proposal is enqueued — never
// as part of the repair loop itself, so a web_fetch injected here is never
// mistaken for something the planner itself decided to do.
func InjectWebFetch(p *Plan, message string) {
	for _, a := range p.Actions {
		if a.Type() == ActionWebFetch {
			return
		}
	}

	match := bareURLRe.FindString(message)
	if match == "" {
		return
	}
	match = strings.TrimRight(match, ".,;:!?")

	u, err := url.Parse(match)
	if err != nil || u.Host == "" {
		return
	}

	mode := "http"
	if _, ok := dynamicPageDomains[stripWWW(u.Hostname())]; ok {
		mode = "browser"
	}

	p.Actions = append(p.Actions, WebFetchAction{
		URL:              match,
		Reason:           "bare URL mentioned in message, fetched for context",
		RequiresApproval: true,
		Mode:             mode,
	})
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
