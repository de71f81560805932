package speech

import "testing"

func TestSpeakable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain text untouched",
			in:   "The capital of France is Paris.",
			want: "The capital of France is Paris.",
		},
		{
			name: "strips bold and italic markers",
			in:   "This is **great** and *fun*",
			want: "This is great and fun",
		},
		{
			name: "keeps speakable punctuation",
			in:   "Wait - really?! Yes; here's why: it works (mostly).",
			want: "Wait - really?! Yes; here's why: it works (mostly).",
		},
		{
			name: "drops decorative symbols",
			in:   "Big news @ the lab: ~50% faster & cheaper #wow",
			want: "Big news  the lab: 50 faster  cheaper wow",
		},
		{
			name: "trims surrounding whitespace",
			in:   "  short answer  ",
			want: "short answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Speakable(tt.in)
			if got != tt.want {
				t.Errorf("Speakable(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
