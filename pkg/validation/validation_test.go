package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("user@example.com"))
	assert.True(t, ValidateEmail("first.last+tag@sub.example.co"))
	assert.False(t, ValidateEmail("not-an-email"))
	assert.False(t, ValidateEmail("user@"))
	assert.False(t, ValidateEmail("@example.com"))
}

func TestValidatePassword(t *testing.T) {
	assert.True(t, ValidatePassword("Str0ng!pass"))
	assert.False(t, ValidatePassword("short1!"))
	assert.False(t, ValidatePassword("alllowercase1!"))
	assert.False(t, ValidatePassword("NoNumbers!"))
	assert.False(t, ValidatePassword("NoSpecial123"))
}

func TestValidateUsername(t *testing.T) {
	assert.True(t, ValidateUsername("user_name-1"))
	assert.False(t, ValidateUsername("ab"))
	assert.False(t, ValidateUsername("has space"))
	assert.False(t, ValidateUsername("emoji😀"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "My Beat", SanitizeFilename("My Beat"))
	assert.Equal(t, "abc", SanitizeFilename(`a<b>c:"/\|?*`))
	assert.Equal(t, "trimmed", SanitizeFilename("  trimmed  "))
	assert.Equal(t, "nul", SanitizeFilename("nul\x00"))
}

func TestExtensionForMime(t *testing.T) {
	assert.Equal(t, ".mp3", ExtensionForMime("audio/mpeg"))
	assert.Equal(t, ".mp3", ExtensionForMime(" AUDIO/MPEG "))
	assert.Equal(t, ".wav", ExtensionForMime("audio/wav"))
	assert.Equal(t, ".wav", ExtensionForMime("audio/x-wav"))
	assert.Equal(t, ".bin", ExtensionForMime("application/octet-stream"))
	assert.Equal(t, ".bin", ExtensionForMime(""))
}
