package fetch

import "strings"

// Known challenge/verification signatures. A body matching any of these is
// classified as blocked rather than as a generic error.
var blockedTokens = []string{
	"pardon our interruption",
	"captcha",
	"verify you are human",
	"human verification",
	"robot check",
	"challenge",
	"splashui",
}

var challengeMarkup = []string{
	"px-captcha",
	"captcha-container",
	"hcaptcha",
	"recaptcha",
}

// BlockedTokens exposes the signature list for cache hygiene, so cached
// challenge pages can be purged.
func BlockedTokens() []string {
	return append([]string(nil), blockedTokens...)
}

// detectChallenge returns the matched signature, or "" when the body looks
// like a normal response.
func detectChallenge(body []byte) string {
	lowered := strings.ToLower(string(body))
	for _, marker := range challengeMarkup {
		if strings.Contains(lowered, marker) {
			return marker
		}
	}
	for _, token := range blockedTokens {
		if strings.Contains(lowered, token) {
			return token
		}
	}
	return ""
}
