package domain

import "regexp"

// Platform URL patterns. Matching is anchored at the start so arbitrary text
// containing a link does not classify.
var platformPatterns = map[PlatformKind][]*regexp.Regexp{
	PlatformInstagram: {
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?instagram\.com/(?:p|reel|reels|stories)/[\w-]+`),
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?instagram\.com/[\w.]+/(?:p|reel)/[\w-]+`),
	},
	PlatformTwitter: {
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?(?:twitter|x)\.com/\w+/status/\d+`),
		regexp.MustCompile(`(?i)^(?:https?://)?(?:mobile\.)?(?:twitter|x)\.com/\w+/status/\d+`),
	},
	PlatformTikTok: {
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?tiktok\.com/@[\w.]+/video/\d+`),
		regexp.MustCompile(`(?i)^(?:https?://)?(?:vm|vt)\.tiktok\.com/\w+`),
		regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?tiktok\.com/t/\w+`),
	},
}

// ClassifyURL maps a raw URL to a platform. Pure function, no network
// access; unknown or malformed URLs classify as PlatformUnknown and the
// caller rejects them before any external process is spawned.
func ClassifyURL(url string) PlatformKind {
	for platform, patterns := range platformPatterns {
		for _, pattern := range patterns {
			if pattern.MatchString(url) {
				return platform
			}
		}
	}
	return PlatformUnknown
}
