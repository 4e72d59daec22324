package guard

import (
	"strings"
	"testing"
)

func TestIsSpam(t *testing.T) {
	cases := []struct {
		name    string
		content string
		spam    bool
	}{
		{"plain sentence", "Hello, how are you today?", false},
		{"char run of 11", "aaaaaaaaaaa", true},
		{"char run of 10", "aaaaaaaaaa", false},
		{"char run inside text", "well " + strings.Repeat("!", 11) + " ok", true},
		{"whole string fragment x6", strings.Repeat("spam! ", 6), true},
		{"whole string fragment x5", strings.Repeat("spam! ", 5), false},
		{"whole string abc x6", strings.Repeat("abc", 6), true},
		{"uppercase run of 20", "STOPSHOUTINGRIGHTNOWPLEASE", true},
		{"uppercase run of 19", "STOPSHOUTINGRIGHTNO", false},
		{"short fragment x11 anywhere", "so funny " + strings.Repeat("ha", 11) + " right", true},
		{"short fragment x10 anywhere", "so funny " + strings.Repeat("ha", 10) + " right", false},
		{"three-char fragment x11", strings.Repeat("lol", 11) + " ok then", true},
		{"unicode text", "Привет, как дела? Всё хорошо.", false},
		{"unicode run", strings.Repeat("ы", 11), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSpam(tc.content); got != tc.spam {
				t.Errorf("IsSpam(%q) = %v, want %v", tc.content, got, tc.spam)
			}
		})
	}
}
