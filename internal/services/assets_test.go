package services

import "testing"

func TestClassifyAsset(t *testing.T) {
	tests := []struct {
		path string
		want AssetKind
	}{
		{"", AssetKindNone},
		{"/a/clip.mp4", AssetKindVideo},
		{"/a/CLIP.MOV", AssetKindVideo},
		{"clip.webm", AssetKindVideo},
		{"photo.jpeg", AssetKindImage},
		{"photo.PNG", AssetKindImage},
		{"notes.txt", AssetKindNone},
		{"noextension", AssetKindNone},
	}

	for _, tt := range tests {
		if got := ClassifyAsset(tt.path); got != tt.want {
			t.Errorf("ClassifyAsset(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestSelectAssetRoundRobin(t *testing.T) {
	images := []string{"a.png", "b.png"}
	clips := []string{"c.mp4"}

	for i := 0; i < 6; i++ {
		want := images[i%2]
		if got := SelectAsset(i, images, clips); got != want {
			t.Errorf("SelectAsset(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestSelectAssetFallbacks(t *testing.T) {
	clips := []string{"c0.mp4", "c1.mp4", "c2.mp4"}
	if got := SelectAsset(4, nil, clips); got != "c1.mp4" {
		t.Errorf("clips only: got %q, want c1.mp4", got)
	}
	if got := SelectAsset(3, nil, nil); got != "" {
		t.Errorf("no assets: got %q, want empty", got)
	}
	if got := SelectAsset(-1, []string{"a.png"}, nil); got != "" {
		t.Errorf("negative index: got %q, want empty", got)
	}
}

func TestSceneDuration(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"ten words", "one two three four five six seven eight nine ten", 4},
		{"two words hit the floor", "Hello world", 4},
		{"empty text hits the floor", "", 4},
		{"rounds down", "w w w w w w w w w w w w w w w w w w w w w w w", 9}, // 23/2.5 = 9.2
		{"exact", "a b c d e f g h i j k l m n o", 6},                       // 15/2.5 = 6
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SceneDuration(tt.text); got != tt.want {
				t.Errorf("SceneDuration = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	got, err := ParseResolution(" 1920x1080 ")
	if err != nil {
		t.Fatalf("ParseResolution: %v", err)
	}
	if got != (Resolution{Width: 1920, Height: 1080}) || got.String() != "1920x1080" {
		t.Errorf("got %+v", got)
	}

	for _, bad := range []string{"", "1920", "x1080", "axb", "0x720", "-2x4", "1281x720", "1280x721"} {
		if _, err := ParseResolution(bad); err == nil {
			t.Errorf("ParseResolution(%q) should fail", bad)
		}
	}
}
