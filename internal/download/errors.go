package download

import "errors"

// ErrNoVideoInfo indicates metadata extraction produced no results.
var ErrNoVideoInfo = errors.New("no_video_info")
