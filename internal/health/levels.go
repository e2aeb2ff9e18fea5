package health

import "github.com/randomizedcoder/streamwatch/internal/model"

// Reference bitrates that map to a full-scale (100) signal level.
const (
	FullScaleVideoBitrate = 5_000_000
	FullScaleAudioBitrate = 320_000
)

// Fallbacks used when no direct track bitrate is known.
const (
	DefaultVideoBitrate = 2_500_000
	DefaultAudioBitrate = 128_000

	// containerVideoShare is the part of the container bitrate attributed
	// to video when the video track does not report its own bitrate.
	containerVideoShare = 0.85
)

// VideoLevel maps a video bitrate to a 0–100 signal level.
func VideoLevel(bitrate int64) float64 {
	return clampLevel(float64(bitrate) / FullScaleVideoBitrate * 100)
}

// AudioLevel maps an audio bitrate to a 0–100 signal level.
func AudioLevel(bitrate int64) float64 {
	return clampLevel(float64(bitrate) / FullScaleAudioBitrate * 100)
}

// VideoBitrate returns the best known video bitrate for stats.
func VideoBitrate(st model.Stats) int64 {
	if st.Video != nil && st.Video.BitRate > 0 {
		return st.Video.BitRate
	}
	if st.Container != nil && st.Container.BitRate > 0 {
		return int64(float64(st.Container.BitRate) * containerVideoShare)
	}
	return DefaultVideoBitrate
}

// AudioBitrate returns the best known audio bitrate for stats.
func AudioBitrate(st model.Stats) int64 {
	if st.Audio != nil && st.Audio.BitRate > 0 {
		return st.Audio.BitRate
	}
	return DefaultAudioBitrate
}

func clampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
