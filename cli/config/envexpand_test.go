package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("WPTDIFF_TEST_KEY", "k-123")
	t.Setenv("WPTDIFF_TEST_EMPTY", "")
	t.Setenv("WPTDIFF_TEST_HOST", "wpt.example")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set var", "api_key: ${WPTDIFF_TEST_KEY}", "api_key: k-123"},
		{"unset var", "api_key: ${WPTDIFF_UNSET_12345}", "api_key: "},
		{"default when unset", "host: ${WPTDIFF_UNSET_12345:-www.webpagetest.org}", "host: www.webpagetest.org"},
		{"default ignored when set", "host: ${WPTDIFF_TEST_HOST:-other}", "host: wpt.example"},
		{"default when empty", "host: ${WPTDIFF_TEST_EMPTY:-fallback}", "host: fallback"},
		{"multiple", "${WPTDIFF_TEST_HOST}/${WPTDIFF_TEST_KEY}", "wpt.example/k-123"},
		{"no refs", "plain text $HOME", "plain text $HOME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_NestedInYAML(t *testing.T) {
	t.Setenv("HOOK_TOKEN", "secret")

	input := `adapter:
  type: webhook
  headers:
    Authorization: Bearer ${HOOK_TOKEN}`

	want := `adapter:
  type: webhook
  headers:
    Authorization: Bearer secret`

	if got := ExpandEnv(input); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
