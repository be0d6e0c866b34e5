// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/riskgate/riskgate/internal/logging"
)

// User-agent statuses.
const (
	StatusEmptyUserAgent   = "empty_user_agent"
	StatusNormalUserAgent  = "normal"
	StatusSuspiciousUA     = "suspicious_user_agent"
	StatusUAInconsistency  = "ua_string_inconsistency"
	StatusBotImpersonation = "bot_impersonation"
)

// uaIssueScores maps user-agent issues to risk. The worst issue wins.
var uaIssueScores = map[string]int{
	"empty_user_agent":                90,
	"bot_impersonation":               85,
	"ua_string_inconsistency":         75,
	"uncommon_browser_os_combination": 60,
	"outdated_browser":                40,
	"parsing_error":                   75,
}

// knownBots are crawler tokens we recognize. A token appearing without
// crawler structure (product/version or a +http reference) is treated
// as impersonation.
var knownBots = []string{
	"googlebot", "bingbot", "yandexbot", "baiduspider", "twitterbot",
	"facebookexternalhit", "slackbot", "discordbot",
}

// minBrowserVersions are the oldest versions not flagged as outdated.
var minBrowserVersions = map[string]string{
	"Chrome":            "90.0",
	"Firefox":           "85.0",
	"Safari":            "14.0",
	"Edge":              "90.0",
	"Internet Explorer": "11.0", // every IE is outdated
}

// uncommonCombos are browser/OS pairs that do not occur in practice.
var uncommonCombos = map[[2]string]bool{
	{"Safari", "Windows"}:             true,
	{"Edge", "iOS"}:                   true,
	{"Internet Explorer", "Android"}:  true,
	{"Internet Explorer", "iOS"}:      true,
	{"Internet Explorer", "Mac OS X"}: true,
}

// UserAgentDetector analyzes the User-Agent header for spoofing,
// impersonation, and outdated browsers. It is stateless.
type UserAgentDetector struct{}

// NewUserAgentDetector creates a user-agent analyzer.
func NewUserAgentDetector() *UserAgentDetector {
	return &UserAgentDetector{}
}

func (d *UserAgentDetector) Name() string {
	return DetectorUserAgent
}

// Evaluate parses and scores the event's user agent.
func (d *UserAgentDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	uaString := event.UserAgent
	if uaString == "" {
		return &Signal{
			RiskScore: uaIssueScores["empty_user_agent"],
			Status:    StatusEmptyUserAgent,
			Message:   "Request carried no User-Agent header",
			Details: map[string]any{
				"issues":          []string{"empty_user_agent"},
				"is_suspicious":   true,
				"user_agent_type": "unknown",
			},
		}, nil
	}

	ua := parseUserAgent(uaString)

	var issues []string
	if impersonated(uaString, ua.IsBot) {
		issues = append(issues, "bot_impersonation")
	}
	if uncommonCombos[[2]string{ua.BrowserFamily, ua.OSFamily}] {
		issues = append(issues, "uncommon_browser_os_combination")
	}
	if hasUAInconsistencies(uaString, ua.BrowserFamily, ua.OSFamily) {
		issues = append(issues, "ua_string_inconsistency")
	}
	if isOutdatedBrowser(ua.BrowserFamily, ua.BrowserVersion) {
		issues = append(issues, "outdated_browser")
	}

	riskScore := 0
	for _, issue := range issues {
		riskScore = max(riskScore, uaIssueScores[issue])
	}

	status := StatusNormalUserAgent
	if riskScore > 50 {
		status = StatusSuspiciousUA
		logging.Warn().Str("user_agent", uaString).Msg("suspicious user agent detected")
	}

	return &Signal{
		RiskScore: riskScore,
		Status:    status,
		Details: map[string]any{
			"issues":          issues,
			"is_suspicious":   riskScore > 50,
			"user_agent_type": ua.Type(),
			"browser":         map[string]string{"family": ua.BrowserFamily, "version": ua.BrowserVersion},
			"os":              map[string]string{"family": ua.OSFamily, "version": ua.OSVersion},
			"is_mobile":       ua.IsMobile,
			"is_tablet":       ua.IsTablet,
			"is_pc":           ua.IsPC,
			"is_bot":          ua.IsBot,
		},
	}, nil
}

// parsedUA is the structural reading of a User-Agent string.
type parsedUA struct {
	BrowserFamily  string
	BrowserVersion string
	OSFamily       string
	OSVersion      string
	IsMobile       bool
	IsTablet       bool
	IsPC           bool
	IsBot          bool
}

// Type returns the coarse client class.
func (u parsedUA) Type() string {
	switch {
	case u.IsBot:
		return "bot"
	case u.IsMobile:
		return "mobile"
	case u.IsTablet:
		return "tablet"
	default:
		return "desktop"
	}
}

var (
	edgeVersionRe    = regexp.MustCompile(`(?i)edge?/([\d.]+)`)
	operaVersionRe   = regexp.MustCompile(`(?i)(?:opr|opera)[/ ]([\d.]+)`)
	chromeVersionRe  = regexp.MustCompile(`(?i)(?:chrome|crios)/([\d.]+)`)
	firefoxVersionRe = regexp.MustCompile(`(?i)(?:firefox|fxios)/([\d.]+)`)
	safariVersionRe  = regexp.MustCompile(`(?i)version/([\d.]+)`)
	msieVersionRe    = regexp.MustCompile(`(?i)msie ([\d.]+)`)
	tridentRe        = regexp.MustCompile(`(?i)rv:([\d.]+)`)
	windowsNTRe      = regexp.MustCompile(`(?i)windows nt ([\d.]+)`)
	macOSRe          = regexp.MustCompile(`(?i)mac os x ([\d_.]+)`)
	iosRe            = regexp.MustCompile(`(?i)os ([\d_]+) like mac os x`)
	androidRe        = regexp.MustCompile(`(?i)android ([\d.]+)`)
)

// parseUserAgent classifies a User-Agent string into browser family,
// version, OS, and device class. Detection order matters: Edge and
// Opera embed Chrome tokens, Chrome embeds Safari tokens.
func parseUserAgent(s string) parsedUA {
	lower := strings.ToLower(s)
	ua := parsedUA{BrowserFamily: "Other", OSFamily: "Other"}

	ua.IsBot = isStructuralBot(lower)

	switch {
	case strings.Contains(lower, "edg/") || strings.Contains(lower, "edge/"):
		ua.BrowserFamily = "Edge"
		ua.BrowserVersion = firstMatch(edgeVersionRe, s)
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		ua.BrowserFamily = "Opera"
		ua.BrowserVersion = firstMatch(operaVersionRe, s)
	case strings.Contains(lower, "msie") || strings.Contains(lower, "trident"):
		ua.BrowserFamily = "Internet Explorer"
		if v := firstMatch(msieVersionRe, s); v != "" {
			ua.BrowserVersion = v
		} else {
			ua.BrowserVersion = firstMatch(tridentRe, s)
		}
	case strings.Contains(lower, "firefox/") || strings.Contains(lower, "fxios/"):
		ua.BrowserFamily = "Firefox"
		ua.BrowserVersion = firstMatch(firefoxVersionRe, s)
	case strings.Contains(lower, "chrome/") || strings.Contains(lower, "crios/"):
		ua.BrowserFamily = "Chrome"
		ua.BrowserVersion = firstMatch(chromeVersionRe, s)
	case strings.Contains(lower, "safari"):
		ua.BrowserFamily = "Safari"
		ua.BrowserVersion = firstMatch(safariVersionRe, s)
	}

	switch {
	case strings.Contains(lower, "windows"):
		ua.OSFamily = "Windows"
		ua.OSVersion = firstMatch(windowsNTRe, s)
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ipod"):
		ua.OSFamily = "iOS"
		ua.OSVersion = strings.ReplaceAll(firstMatch(iosRe, s), "_", ".")
	case strings.Contains(lower, "android"):
		ua.OSFamily = "Android"
		ua.OSVersion = firstMatch(androidRe, s)
	case strings.Contains(lower, "mac os x") || strings.Contains(lower, "macintosh"):
		ua.OSFamily = "Mac OS X"
		ua.OSVersion = strings.ReplaceAll(firstMatch(macOSRe, s), "_", ".")
	case strings.Contains(lower, "cros"):
		ua.OSFamily = "Chrome OS"
	case strings.Contains(lower, "linux"):
		ua.OSFamily = "Linux"
	}

	switch {
	case ua.IsBot:
	case strings.Contains(lower, "ipad") || (strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")):
		ua.IsTablet = true
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone"):
		ua.IsMobile = true
	default:
		ua.IsPC = true
	}

	return ua
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// isStructuralBot reports whether a known crawler token appears the
// way real crawlers present themselves: as a product token with a
// version, or with the conventional +http contact URL.
func isStructuralBot(lower string) bool {
	for _, bot := range knownBots {
		idx := strings.Index(lower, bot)
		if idx < 0 {
			continue
		}
		rest := lower[idx+len(bot):]
		if strings.HasPrefix(rest, "/") || strings.Contains(lower, "+http") {
			return true
		}
	}
	return false
}

// impersonated reports a known bot token used without crawler
// structure.
func impersonated(uaString string, isBot bool) bool {
	if isBot {
		return false
	}
	lower := strings.ToLower(uaString)
	for _, bot := range knownBots {
		if strings.Contains(lower, bot) {
			return true
		}
	}
	return false
}

// hasUAInconsistencies flags strings whose tokens contradict the
// detected browser or OS.
func hasUAInconsistencies(uaString, browserFamily, osFamily string) bool {
	if browserFamily == "Chrome" && strings.Contains(uaString, "Firefox") {
		return true
	}
	if browserFamily == "Firefox" && strings.Contains(uaString, "Chrome") && !strings.Contains(uaString, "Chromium") {
		return true
	}
	if osFamily == "Windows" &&
		(strings.Contains(uaString, "Mac OS") || strings.Contains(uaString, "iPhone") || strings.Contains(uaString, "iPad")) {
		return true
	}
	if osFamily == "Mac OS X" && strings.Contains(uaString, "Windows") {
		return true
	}
	return false
}

// isOutdatedBrowser compares the parsed version against the minimum
// safe version table, part by part.
func isOutdatedBrowser(family, version string) bool {
	minVersion, ok := minBrowserVersions[family]
	if !ok || version == "" {
		return false
	}

	current := versionParts(version)
	minimum := versionParts(minVersion)
	if len(current) == 0 {
		return false
	}

	for i := 0; i < len(current) && i < len(minimum); i++ {
		if current[i] < minimum[i] {
			return true
		}
		if current[i] > minimum[i] {
			return false
		}
	}
	return len(current) < len(minimum)
}

func versionParts(v string) []int {
	var parts []int
	for _, p := range strings.Split(v, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}

// Compile-time interface assertion
var _ Detector = (*UserAgentDetector)(nil)
