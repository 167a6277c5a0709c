package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/tipbot"},
		Mastodon: MastodonConfig{
			RestBaseURL:      "https://social.example/api/v1",
			StreamingBaseURL: "wss://social.example/api/v1/streaming",
			AccessToken:      "token",
			TriggerHashtag:   "xnotip",
		},
		Nano: NanoConfig{
			RPCURL:         "https://rpc.example",
			Seed:           strings.Repeat("0", 64),
			Representative: "nano_3i1aq1cchnmbn9x5rsbap8b15akfh7wj7pwskuzi7ahz8oq6cobd99d4r3b7",
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissing(t *testing.T) {
	cfg := validConfig()
	cfg.Nano.Seed = ""
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nano.seed")
}

func TestValidateRejectsShortSeed(t *testing.T) {
	cfg := validConfig()
	cfg.Nano.Seed = "abcd"
	assert.Error(t, cfg.Validate())
}
