package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "known digest",
			url:  "hello",
			want: "5d41402abc4b2a76b9719d911017c592",
		},
		{
			name: "typical video url",
			url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			want: "75170fc230cd88f32e475ff4087f81d9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.url))
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	url := "https://soundcloud.com/artist/track"

	assert.Equal(t, Key(url), Key(url))
	assert.Len(t, Key(url), 32)
	assert.NotEqual(t, Key(url), Key(url+"?t=1"))
}
