package security

import "testing"

func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Greek Yogurt", "Greek Yogurt"},
		{"empty", "", ""},
		{"trim", "  Oat Milk \n", "Oat Milk"},
		{"tags", "<b>Organic</b> <i>Granola</i>", "Organic Granola"},
		{"script", "Chips<script>alert('x')</script>", "Chips"},
		{"style", "<style>body{color:red}</style>Soda", "Soda"},
		{"event attr", `<img src=x onerror="alert(1)">Candy`, "Candy"},
		{"ampersand", "Ben & Jerry's", "Ben & Jerry's"},
		{"entities", "Caf&eacute; &amp; Co", "Café & Co"},
		{"japanese", "<p>無添加</p>ヨーグルト", "無添加ヨーグルト"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_StableOnPlainOutput(t *testing.T) {
	s := NewTextSanitizer()
	first := s.SanitizeText("<em>High</em> in sugar & sodium")
	if second := s.SanitizeText(first); second != first {
		t.Errorf("平文の出力は再処理で変化しないべき: %q → %q", first, second)
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer()
}
