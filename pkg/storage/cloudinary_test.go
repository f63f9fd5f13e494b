package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1712/friendline/avatars/me.webp", "friendline/avatars/me"},
		{"https://res.cloudinary.com/demo/image/upload/friendline/avatars/me.webp", "friendline/avatars/me"},
		{"https://res.cloudinary.com/demo/image/upload/venue/photo.jpg", "venue/photo"},
		{"https://res.cloudinary.com/demo/image/upload/", ""},
		{"https://example.com/no-upload-segment.png", ""},
		{"::not a url", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PublicIDFromURL(tt.url), tt.url)
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, isImage("cat.JPG"))
	assert.True(t, isImage("cat.webp"))
	assert.False(t, isImage("notes.pdf"))
}

func TestOwnedBy(t *testing.T) {
	const prefix = "friendline/messages/42"

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"own upload", "https://res.cloudinary.com/demo/image/upload/v1712/friendline/messages/42/171-cat.webp", true},
		{"own upload without version", "https://res.cloudinary.com/demo/image/upload/friendline/messages/42/171-cat.webp", true},
		{"other user's folder", "https://res.cloudinary.com/demo/image/upload/v1/friendline/messages/43/171-cat.webp", false},
		{"folder name prefix only", "https://res.cloudinary.com/demo/image/upload/v1/friendline/messages/421/171-cat.webp", false},
		{"other cloud", "https://res.cloudinary.com/evil/image/upload/v1/friendline/messages/42/171-cat.webp", false},
		{"other host", "https://cdn.example.com/demo/image/upload/v1/friendline/messages/42/171-cat.webp", false},
		{"plain http", "http://res.cloudinary.com/demo/image/upload/v1/friendline/messages/42/171-cat.webp", false},
		{"path traversal", "https://res.cloudinary.com/demo/image/upload/v1/friendline/messages/42/../43/cat.webp", false},
		{"garbage", "::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ownedBy(tt.url, "demo", prefix))
		})
	}
}
