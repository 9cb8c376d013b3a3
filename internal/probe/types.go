package probe

import "strconv"

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	FormatName string
	Duration   float64 // seconds; 0 when the container does not report one
	Size       int64
	BitRate    int64
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	PixFmt        string
	Width         int
	Height        int
	AvgFrameRate  string
	IsAttachedPic bool
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index         int
	Codec         string
	Channels      int
	ChannelLayout string
	SampleRate    int
}

// Result is the fully parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
type Result struct {
	Format       FormatInfo
	PrimaryVideo *VideoStream
	AudioStreams []AudioStream
}

// HasVideo reports whether the file carries a real video stream. Embedded
// cover art does not count.
func (r *Result) HasVideo() bool {
	return r.PrimaryVideo != nil
}

// HasAudio reports whether the file carries at least one audio stream.
func (r *Result) HasAudio() bool {
	return len(r.AudioStreams) > 0
}

// DurationMs returns the container duration in milliseconds. Progressively
// written recordings often report no duration; those return 0 and the
// caller must not use the value for trimming.
func (r *Result) DurationMs() int64 {
	if r.Format.Duration <= 0 {
		return 0
	}
	return int64(r.Format.Duration * 1000)
}

// Resolution returns "WxH" for the primary video stream, or "unknown".
func (r *Result) Resolution() string {
	if r.PrimaryVideo == nil || r.PrimaryVideo.Width <= 0 || r.PrimaryVideo.Height <= 0 {
		return "unknown"
	}
	return strconv.Itoa(r.PrimaryVideo.Width) + "x" + strconv.Itoa(r.PrimaryVideo.Height)
}
