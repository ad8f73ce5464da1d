package mention

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatcher_Find(t *testing.T) {
	req := require.New(t)
	matcher, err := NewMatcher([]string{"@assistant", "@ai", " "})
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Handle at the start",
			input:    "@ai what is our deploy policy?",
			expected: []string{"@ai"},
		},
		{
			name:     "Handle followed by punctuation",
			input:    "hey @Assistant, can you help",
			expected: []string{"@assistant"},
		},
		{
			name:     "Several handles",
			input:    "@ai or @assistant",
			expected: []string{"@ai", "@assistant"},
		},
		{
			name:     "Longer word sharing the prefix",
			input:    "ask @aider about it",
			expected: nil,
		},
		{
			name:     "Email address",
			input:    "write to mail@ai.dev",
			expected: nil,
		},
		{
			name:     "No handle",
			input:    "the ai is down",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, matcher.Find(tt.input))
		})
	}
}

func TestMatcher_Without_Handles_Never_Matches(t *testing.T) {
	req := require.New(t)
	matcher, err := NewMatcher(nil)
	req.NoError(err)
	req.False(matcher.Mentions("@ai hello"))
}

func TestMatcher_Mentions(t *testing.T) {
	req := require.New(t)
	matcher, err := NewMatcher([]string{"@assistant"})
	req.NoError(err)
	req.True(matcher.Mentions("thanks @assistant"))
	req.False(matcher.Mentions(""))
}
