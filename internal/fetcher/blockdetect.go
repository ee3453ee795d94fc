package fetcher

import "strings"

// BlockType describes the kind of anti-bot block detected in rendered HTML.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockLogin      BlockType = "login_redirect"
)

// DetectBlock checks rendered page HTML for signs that the admin session was
// blocked or bounced. A blocked page must never be parsed as an empty
// submission list, so the browser fetcher runs this before row extraction.
func DetectBlock(html string) (bool, BlockType) {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}

	// Session expiry bounces to the login form.
	if strings.Contains(lower, "name=\"password\"") &&
		strings.Contains(lower, "type=\"password\"") {
		return true, BlockLogin
	}

	return false, BlockNone
}
