package download

import "regexp"

// Recognized YouTube URL shapes. Scheme and "www." are optional; the video
// id is a run of word characters and hyphens.
var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/v/[\w-]+`),
}

// IsValidYouTubeURL reports whether url matches one of the recognized
// YouTube URL shapes.
func IsValidYouTubeURL(url string) bool {
	for _, p := range youtubePatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}
