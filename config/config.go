package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

func New(loc string) (*Config, error) {
	var c Config

	f, err := os.Open(loc)
	if err != nil {
		log.Println("Config error", err)
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&c); err != nil {
		log.Println("Config error", err)
		return nil, err
	}

	// Secrets come from the environment, never from the json file
	if err := readEnv(&c); err != nil {
		log.Println("Config error", err)
		return nil, err
	}

	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.SweepAttempts == 0 {
		c.SweepAttempts = 24
	}
	if c.VerifyWindow == 0 {
		c.VerifyWindow = 24 * time.Hour
	}

	return &c, nil
}

type Config struct {
	Host string `json:"host"`
	Port string `json:"port"`

	DBPath string `json:"dbPath"`
	DBName string `json:"dbName"`

	Sandbox bool `json:"sandbox"`

	// Platform cut of every funded campaign
	FeeRate float64 `json:"feeRate"`

	// Wallet the fee sweep pays into
	PlatformWallet string `json:"platformWallet"`

	// Escrow fee-sweep poll loop
	SweepInterval time.Duration `json:"sweepInterval"`
	SweepAttempts int           `json:"sweepAttempts"`

	// How long a posted placement must stay up before completion
	VerifyWindow time.Duration `json:"verifyWindow"`

	Telegram struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"-" env:"TELEGRAM_BOT_TOKEN"`
	} `json:"telegram"`

	TON struct {
		Endpoint string `json:"endpoint"`
		APIKey   string `json:"-" env:"TON_API_KEY"`
	} `json:"ton"`

	Secrets struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"-" env:"SECRET_STORE_TOKEN"`
	} `json:"secrets"`

	Identity struct {
		Endpoint string `json:"endpoint"`
	} `json:"identity"`

	// Shared key for trusted-scheduler endpoints (deal verification)
	AdminKey string `json:"-" env:"ADMIN_API_KEY"`

	Bucket struct {
		Ad           string `json:"ad"`
		Offer        string `json:"offer"`
		Notification string `json:"notification"`
		Wallet       string `json:"wallet"`
		User         string `json:"user"`
		Channel      string `json:"channel"`
		Sweep        string `json:"sweep"`
	} `json:"bucket"`
}

func (c *Config) AllBuckets() []string {
	return []string{
		c.Bucket.Ad, c.Bucket.Offer, c.Bucket.Notification,
		c.Bucket.Wallet, c.Bucket.User, c.Bucket.Channel, c.Bucket.Sweep,
	}
}
