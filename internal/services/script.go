package services

import (
	"strings"

	"github.com/bobarin/scriptreel/internal/models"
)

// speakerSeparator splits "SPEAKER: text" lines.
const speakerSeparator = ":"

// ParseScript turns a speaker-tagged script into ordered scenes.
//
//	NARRATOR: The world was quiet.
//	ALICE: Hello there!
//	and this line continues Alice's turn.
//
// A tagged line opens a new scene. An untagged line is appended to the open
// scene, or opens a NARRATOR scene when none is open. A blank line closes the
// open scene. Scenes whose text is empty are dropped and the rest are
// re-indexed from 0.
func ParseScript(script string) []models.Scene {
	var scenes []models.Scene
	open := -1

	script = strings.ReplaceAll(script, "\r\n", "\n")
	for _, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			open = -1
			continue
		}

		if name, text, ok := strings.Cut(line, speakerSeparator); ok {
			scenes = append(scenes, models.Scene{
				Speaker: normalizeSpeaker(name),
				Text:    strings.TrimSpace(text),
			})
			open = len(scenes) - 1
			continue
		}

		if open < 0 {
			scenes = append(scenes, models.Scene{Speaker: models.DefaultSpeaker, Text: line})
			open = len(scenes) - 1
			continue
		}

		if scenes[open].Text == "" {
			scenes[open].Text = line
		} else {
			scenes[open].Text += " " + line
		}
	}

	out := make([]models.Scene, 0, len(scenes))
	for _, scene := range scenes {
		if scene.Text == "" {
			continue
		}
		scene.Index = len(out)
		out = append(out, scene)
	}
	return out
}

func normalizeSpeaker(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return models.DefaultSpeaker
	}
	return name
}
