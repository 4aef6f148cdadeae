package annotation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var frameKeyRegex = regexp.MustCompile(`^frame_(\d+)$`)

// FrameKey returns the key of a frame, eg frame_000012
func FrameKey(index int) string {
	return fmt.Sprintf("frame_%06d", index)
}

// ParseFrameIndex extracts the index from a frame key
func ParseFrameIndex(key string) (int, bool) {
	m := frameKeyRegex.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// KeyFromFilename strips the directory and extension
func KeyFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PreviousKey returns the key of the frame before this one
func PreviousKey(key string) (string, bool) {
	idx, ok := ParseFrameIndex(key)
	if !ok || idx <= 0 {
		return "", false
	}
	return FrameKey(idx - 1), true
}

func MaskFilename(key string) string {
	return key + ".png"
}

func ImageFilename(key string) string {
	return key + ".jpg"
}

func AnnotationFilename(key string) string {
	return key + ".json"
}
