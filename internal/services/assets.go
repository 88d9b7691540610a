package services

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// AssetKind classifies a caller-supplied asset by file extension.
type AssetKind string

const (
	AssetKindNone  AssetKind = "none"  // No asset: a placeholder card is rendered
	AssetKindImage AssetKind = "image" // Held static for the scene duration
	AssetKindVideo AssetKind = "video" // Trimmed or looped to the scene duration
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".mkv": true, ".avi": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
}

// ClassifyAsset returns the kind of the asset at path. Unknown extensions
// classify as AssetKindNone so the scene falls back to a placeholder.
func ClassifyAsset(path string) AssetKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case path == "":
		return AssetKindNone
	case videoExtensions[ext]:
		return AssetKindVideo
	case imageExtensions[ext]:
		return AssetKindImage
	default:
		return AssetKindNone
	}
}

// SelectAsset picks the visual source for scene i. Images win over clips and
// both lists are reused round-robin, so asset count need not match scene count.
// An empty result means no asset.
func SelectAsset(i int, images, clips []string) string {
	if i < 0 {
		return ""
	}
	if len(images) > 0 {
		return images[i%len(images)]
	}
	if len(clips) > 0 {
		return clips[i%len(clips)]
	}
	return ""
}

const (
	minSceneSeconds = 4
	wordsPerSecond  = 2.5
)

// SceneDuration is the on-screen time for a scene's text: roughly 2.5 words
// per second with a 4 second floor, rounded down to whole seconds.
func SceneDuration(text string) int {
	seconds := float64(len(strings.Fields(text))) / wordsPerSecond
	if seconds < minSceneSeconds {
		seconds = minSceneSeconds
	}
	return int(seconds)
}

// Resolution is an output frame size.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses a literal "WIDTHxHEIGHT" string. libx264 with
// yuv420p needs even dimensions, so odd values are rejected.
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: want WIDTHxHEIGHT", s)
	}

	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", h, err)
	}

	if width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	if width%2 != 0 || height%2 != 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be even", s)
	}

	return Resolution{Width: width, Height: height}, nil
}
