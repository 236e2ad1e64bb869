package survey

import "testing"

func TestClipNameRoundTrip(t *testing.T) {
	if got := ClipName(0, "webm"); got != "question_01.webm" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := ClipName(11, ".MP4"); got != "question_12.mp4" {
		t.Fatalf("unexpected name %q", got)
	}
	for _, tc := range []struct {
		name string
		want int
		ok   bool
	}{
		{"question_01.webm", 0, true},
		{"/tmp/x/question_07.mp4", 6, true},
		{"question_00.mp4", 0, false},
		{"clip_01.mp4", 0, false},
		{"question_ab.mp4", 0, false},
	} {
		got, ok := ParseClipName(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseClipName(%q) = %d,%v want %d,%v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
