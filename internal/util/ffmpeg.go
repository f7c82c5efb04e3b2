package util

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeFunc returns raw ffprobe JSON for a media source.
type ProbeFunc func(source string) (string, error)

// FFProbe 使用ffmpeg-go库读取媒体元数据，source 可以是本地路径或URL
func FFProbe(source string) (string, error) {
	return ffmpeg.Probe(source)
}

// VideoDurationSeconds 解析视频时长（秒，向上取整）
func VideoDurationSeconds(probe ProbeFunc, source string) (int, error) {
	jsonOutput, err := probe(source)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", source, err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return 0, fmt.Errorf("decode probe output: %w", err)
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	return int(math.Ceil(duration)), nil
}
