package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestMapCoversEveryField(t *testing.T) {
	m := GetDefault().Map()
	assert.Equal(t, map[string]any{
		"port":         65432,
		"downloads":    "downloads",
		"username":     "",
		"verbose":      false,
		"discovery":    true,
		"event_buffer": 64,
	}, m)
}

func TestYamlRendersEveryKey(t *testing.T) {
	yaml := string(GetDefault().Yaml())
	for key := range GetDefault().Map() {
		assert.Contains(t, yaml, key+":")
	}
}

func TestIsDefault(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("port", 65432)
	assert.True(t, IsDefault("port"))

	viper.Set("port", 1234)
	assert.False(t, IsDefault("port"))
}
