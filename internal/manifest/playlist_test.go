package manifest

import (
	"strings"
	"testing"
)

func TestParse_EmptyMediaPlaylist(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:7\n"
	pl, err := Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pl.IsMaster() {
		t.Error("media playlist reported as master")
	}
	if len(pl.Segments) != 0 {
		t.Errorf("len(Segments) = %d, want 0", len(pl.Segments))
	}
	if _, ok := pl.LastSegment(); ok {
		t.Error("LastSegment on empty playlist should be false")
	}
	if pl.MediaSequence != 7 {
		t.Errorf("MediaSequence = %d, want 7", pl.MediaSequence)
	}
}

func TestParse_VOD(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\na.ts\n#EXT-X-ENDLIST\n"
	pl, err := Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pl.PlaylistType != TypeVOD {
		t.Errorf("PlaylistType = %q, want VOD", pl.PlaylistType)
	}
	if pl.IsLive() {
		t.Error("VOD playlist should not be live")
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, body := range []string{"", "hello world\n"} {
		if _, err := Parse(strings.NewReader(body)); err == nil {
			t.Errorf("Parse(%q) should fail", body)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://cdn.example.com/live/master.m3u8", "hi/index.m3u8", "http://cdn.example.com/live/hi/index.m3u8"},
		{"http://cdn.example.com/live/master.m3u8", "/abs/index.m3u8", "http://cdn.example.com/abs/index.m3u8"},
		{"http://cdn.example.com/live/master.m3u8", "https://other.example.com/x.m3u8", "https://other.example.com/x.m3u8"},
		{"http://cdn.example.com/live/hi/index.m3u8", "../seg/1.ts", "http://cdn.example.com/live/seg/1.ts"},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.base, tt.ref)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", tt.base, tt.ref, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}
