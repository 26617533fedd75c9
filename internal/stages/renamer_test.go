package stages

import (
	"testing"

	"gantry/internal/config"
	"gantry/internal/pipeline"
	"gantry/internal/queue"
)

func TestReleaseNameDottedStyle(t *testing.T) {
	renamer := NewRenamer()
	entry := &queue.FileEntry{SourcePath: "/in/some show s01e02 repack.mkv", ReleaseName: "some show s01e02 repack"}
	media := &pipeline.MediaInfo{VideoCodec: "h264", Width: 1920, Height: 1080}

	name, err := renamer.ReleaseName(config.Tracker{Name: "t", NamingStyle: "dotted"}, entry, media)
	if err != nil {
		t.Fatalf("ReleaseName: %v", err)
	}
	if name != "Some.Show.S01E02.Repack.1080p.x264" {
		t.Fatalf("unexpected release name %q", name)
	}
}

func TestReleaseNameSpacedStyle(t *testing.T) {
	renamer := NewRenamer()
	entry := &queue.FileEntry{ReleaseName: "old.movie.1987.dvdrip"}
	media := &pipeline.MediaInfo{VideoCodec: "mpeg2video", Width: 720, Height: 576}

	name, err := renamer.ReleaseName(config.Tracker{Name: "t", NamingStyle: "spaced"}, entry, media)
	if err != nil {
		t.Fatalf("ReleaseName: %v", err)
	}
	if name != "Old Movie 1987 Dvdrip 576p MPEG-2" {
		t.Fatalf("unexpected release name %q", name)
	}
}

func TestReleaseNameKeepsExistingMarkers(t *testing.T) {
	renamer := NewRenamer()
	entry := &queue.FileEntry{ReleaseName: "Show.S02E05.2160p.x265"}
	media := &pipeline.MediaInfo{VideoCodec: "hevc", Width: 3840, Height: 2160}

	name, err := renamer.ReleaseName(config.Tracker{Name: "t"}, entry, media)
	if err != nil {
		t.Fatalf("ReleaseName: %v", err)
	}
	// Resolution and codec are already present and must not be appended twice.
	if name != "Show.S02E05.2160p.x265" {
		t.Fatalf("unexpected release name %q", name)
	}
}

func TestReleaseNameFallsBackToSourcePath(t *testing.T) {
	renamer := NewRenamer()
	entry := &queue.FileEntry{SourcePath: "/staging/top_gear_s01.mkv"}
	media := &pipeline.MediaInfo{VideoCodec: "av1", Width: 1280, Height: 720}

	name, err := renamer.ReleaseName(config.Tracker{Name: "t"}, entry, media)
	if err != nil {
		t.Fatalf("ReleaseName: %v", err)
	}
	if name != "Top.Gear.S01.720p.AV1" {
		t.Fatalf("unexpected release name %q", name)
	}
}

func TestReleaseNameRejectsUnknownStyle(t *testing.T) {
	renamer := NewRenamer()
	entry := &queue.FileEntry{ReleaseName: "whatever"}
	media := &pipeline.MediaInfo{}

	if _, err := renamer.ReleaseName(config.Tracker{Name: "t", NamingStyle: "screaming"}, entry, media); err == nil {
		t.Fatal("expected configuration error for unknown style")
	}
}

func TestCodecLabel(t *testing.T) {
	cases := map[string]string{
		"h264":       "x264",
		"hevc":       "x265",
		"av1":        "AV1",
		"mpeg2video": "MPEG-2",
		"vp9":        "VP9",
		"":           "",
	}
	for codec, want := range cases {
		if got := codecLabel(codec); got != want {
			t.Errorf("codecLabel(%q) = %q, want %q", codec, got, want)
		}
	}
}
