package automation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRegex(t *testing.T) {
	valid := []string{
		`^hello$`,
		`order\s+#?\d+`,
		`(hi|hello|hey)`,
		`[a-z]+@example\.com`,
		`price.*list`,
	}
	for _, p := range valid {
		require.NoError(t, ValidateRegex(p), p)
	}

	invalid := []struct {
		why     string
		pattern string
	}{
		{"empty", ""},
		{"nested", "(a+)+"},
		{"nested", "(.*)*"},
		{"nested", `(\d+){2,}`},
		{"wildcard", "a.*.*b"},
		{"class", "[a-z]++"},
		{"class", "[0-9]{2}{3}"},
		{"compile", "(unclosed"},
		{"length", strings.Repeat("a", MaxPatternLength+1)},
	}
	for _, tc := range invalid {
		require.Error(t, ValidateRegex(tc.pattern), "%s: %q", tc.why, tc.pattern)
	}
}

func TestRender(t *testing.T) {
	bindings := map[string]string{"sender": "628123@s.whatsapp.net", "phone": "628123", "rule": "menu"}

	require.Equal(t, "Hi 628123, here is the menu", Render("Hi {{phone}}, here is the {{ rule }}", bindings))
	require.Equal(t, "Hello {{name}}", Render("Hello {{name}}", bindings))
	require.Equal(t, "no placeholders", Render("no placeholders", bindings))
	require.Equal(t, "{{phone}}", Render("{{phone}}", nil))
}

func TestPhoneFromJID(t *testing.T) {
	require.Equal(t, "628123", PhoneFromJID("628123@s.whatsapp.net"))
	require.Equal(t, "628123", PhoneFromJID("628123:12@s.whatsapp.net"))
	require.Equal(t, "628123", PhoneFromJID("628123"))
}
