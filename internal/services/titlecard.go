package services

import (
	"fmt"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Placeholder title card
//
// Scenes without a usable asset get a still frame showing the scene text on a
// dark background. The text is laid out by an ASS script that ffmpeg's `ass`
// filter burns onto a lavfi color source, which avoids drawtext's fragile
// quoting rules for arbitrary script text.
// ---------------------------------------------------------------------------

const (
	cardMaxChars   = 200
	cardFontName   = "DejaVu Sans"
	cardFontSize   = 40 // at 1080 lines; scaled with output height
	cardMarginX    = 50
	cardBackground = "0x14141E" // rgb(20,20,30)

	// ASS colors are in &HAABBGGRR format
	cardColorText    = "&H00E6E6E6" // rgb(230,230,230)
	cardColorOutline = "&H00000000"
)

// TruncateCardText limits text to the character budget of a title card.
func TruncateCardText(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= cardMaxChars {
		return string(runes)
	}
	return string(runes[:cardMaxChars])
}

// WriteTitleCardASS writes an ASS script that renders text left-aligned just
// above the vertical center of a frame of the given resolution.
func WriteTitleCardASS(text string, res Resolution, outputPath string) error {
	fontSize := cardFontSize * res.Height / 1080
	if fontSize < 12 {
		fontSize = 12
	}

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString(fmt.Sprintf("PlayResX: %d\n", res.Width))
	sb.WriteString(fmt.Sprintf("PlayResY: %d\n", res.Height))
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	// Alignment 7 = top-left, so \pos anchors the first line's corner
	sb.WriteString(fmt.Sprintf(
		"Style: Card,%s,%d,%s,%s,%s,%s,0,0,0,0,100,100,0,0,1,0,0,7,%d,%d,0,1\n",
		cardFontName, fontSize,
		cardColorText,
		cardColorText,
		cardColorOutline,
		cardColorOutline,
		cardMarginX, cardMarginX,
	))
	sb.WriteString("\n")

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	y := res.Height/2 - 50
	if y < 0 {
		y = 0
	}
	sb.WriteString(fmt.Sprintf(
		"Dialogue: 0,%s,%s,Card,,0,0,0,,{\\pos(%d,%d)}%s\n",
		formatASSTime(0),
		formatASSTime(35999.99),
		cardMarginX, y,
		escapeASSText(TruncateCardText(text)),
	))

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write title card script: %w", err)
	}

	return nil
}

// escapeASSText neutralizes override blocks and line breaks in dialogue text.
func escapeASSText(s string) string {
	r := strings.NewReplacer(
		"\\", "/",
		"{", "(",
		"}", ")",
		"\r", " ",
		"\n", " ",
	)
	return r.Replace(s)
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
