// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	ListenAddr   string `env:"LISTEN_ADDR"   envDefault:":8080"         envDocs:"address the websocket and metrics server listens on"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"livematch.db"  envDocs:"path of the sqlite database file"`

	BucketWidth            int `env:"MATCH_BUCKET_WIDTH"               envDefault:"100" envDocs:"width of a rating bucket, entries land in floor(rating/width)*width"`
	MinPlayers             int `env:"MATCH_MIN_PLAYERS"                envDefault:"2"   envDocs:"minimum participants for a match to form"`
	MaxPlayers             int `env:"MATCH_MAX_PLAYERS"                envDefault:"8"   envDocs:"maximum participants in a match"`
	MaxWaitSecond          int `env:"MATCH_MAX_WAIT_SECOND"            envDefault:"60"  envDocs:"wait time after which the rating constraint is relaxed to adjacent buckets"`
	PartyMaxMembers        int `env:"PARTY_MAX_MEMBERS"                envDefault:"8"   envDocs:"maximum members in a party"`
	ChatHistoryLimit       int `env:"PARTY_CHAT_HISTORY_LIMIT"         envDefault:"50"  envDocs:"bounded party chat log capacity, oldest entries evicted"`
	GraceWindowSecond      int `env:"SESSION_GRACE_WINDOW_SECOND"      envDefault:"60"  envDocs:"time a disconnected participant may reconnect before being marked DNF"`
	FormationTimeoutSecond int `env:"SESSION_FORMATION_TIMEOUT_SECOND" envDefault:"60"  envDocs:"time a forming match waits for ready players before aborting"`
	ReapIntervalSecond     int `env:"SESSION_REAP_INTERVAL_SECOND"     envDefault:"30"  envDocs:"period of the registry sweep for stale and finalized matches"`
	StaleFormingSecond     int `env:"SESSION_STALE_FORMING_SECOND"     envDefault:"300" envDocs:"forming matches with zero ready players older than this are reaped"`
	RatingKFactor          int `env:"RATING_K_FACTOR"                  envDefault:"32"  envDocs:"Elo K factor used by the rating calculator"`
	FinalizeMaxRetries     int `env:"FINALIZE_MAX_RETRIES"             envDefault:"5"   envDocs:"durable-store retries per participant during outcome finalization"`
	FinalizeBaseDelayMs    int `env:"FINALIZE_BASE_DELAY_MS"           envDefault:"100" envDocs:"initial backoff delay for durable-store retries"`
}

// FromEnv parses the configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.BucketWidth <= 0 {
		return errors.New("bucket width must be positive")
	}
	if c.MinPlayers < 2 {
		return errors.New("min players must be at least 2")
	}
	if c.MaxPlayers < c.MinPlayers {
		return errors.New("max players must not be less than min players")
	}
	if c.PartyMaxMembers <= 0 || c.PartyMaxMembers > c.MaxPlayers {
		return errors.New("party max members must be in (0, max players]")
	}
	if c.GraceWindowSecond <= 0 {
		return errors.New("grace window must be positive")
	}
	if c.RatingKFactor <= 0 {
		return errors.New("rating K factor must be positive")
	}
	return nil
}

func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.GraceWindowSecond) * time.Second
}

func (c *Config) FormationTimeout() time.Duration {
	return time.Duration(c.FormationTimeoutSecond) * time.Second
}

func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSecond) * time.Second
}

func (c *Config) StaleForming() time.Duration {
	return time.Duration(c.StaleFormingSecond) * time.Second
}

func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSecond) * time.Second
}

func (c *Config) FinalizeBaseDelay() time.Duration {
	return time.Duration(c.FinalizeBaseDelayMs) * time.Millisecond
}

// Default returns the configuration used when no environment is present,
// mirroring the envDefault values.
func Default() *Config {
	return &Config{
		ListenAddr:             ":8080",
		DatabasePath:           "livematch.db",
		BucketWidth:            100,
		MinPlayers:             2,
		MaxPlayers:             8,
		MaxWaitSecond:          60,
		PartyMaxMembers:        8,
		ChatHistoryLimit:       50,
		GraceWindowSecond:      60,
		FormationTimeoutSecond: 60,
		ReapIntervalSecond:     30,
		StaleFormingSecond:     300,
		RatingKFactor:          32,
		FinalizeMaxRetries:     5,
		FinalizeBaseDelayMs:    100,
	}
}
