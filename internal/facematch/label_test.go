package facematch

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jiří", "Jiri"},
		{"Novák", "Novak"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RemoveDiacritics(tt.in); got != tt.want {
			t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLabelSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Jiří Novák", "jiri_novak"},
		{"  Agent -- 007 ", "agent_007"},
		{"../../etc/passwd", "etc_passwd"},
		{"already_ok", "already_ok"},
		{"!!!", "target"},
		{"", "target"},
	}
	for _, tt := range tests {
		if got := LabelSlug(tt.in); got != tt.want {
			t.Errorf("LabelSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
