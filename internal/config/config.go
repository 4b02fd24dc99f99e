// Package config holds the assistant settings: built-in defaults, the
// user's JSON overlay in config/user_config.json and dotted-key access
// for the control socket.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"jarvis/internal/lang"
)

const UserFile = "config/user_config.json"

var ErrUnknownKey = errors.New("unknown config key")

type Config struct {
	OpenRouter OpenRouter `json:"openrouter"`
	Voice      Voice      `json:"voice"`
	Speech     Speech     `json:"speech"`
	Camera     Camera     `json:"camera"`
	Languages  Languages  `json:"languages"`
	Features   Features   `json:"features"`
}

type OpenRouter struct {
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	SiteURL   string `json:"site_url"`
	SiteName  string `json:"site_name"`
}

// Voice tunes the synthesizer. The spoken language follows the session.
type Voice struct {
	Rate   int     `json:"rate"`
	Volume float64 `json:"volume"`
}

// Speech tunes capture and recognition. Engine picks the transcriber when
// the daemon is started without --stt: whisper, remote or auto.
type Speech struct {
	Engine          string  `json:"engine"`
	Timeout         float64 `json:"timeout"`
	PhraseTimeout   float64 `json:"phrase_timeout"`
	EnergyThreshold float64 `json:"energy_threshold"`
	WakeWindow      float64 `json:"wake_window"`
	MaxCommand      float64 `json:"max_command"`
	SaveRecordings  bool    `json:"save_recordings"`
}

type Camera struct {
	Device string `json:"device"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Languages.Default is the language a session starts in. Switching
// language by voice or socket stores the new language here.
type Languages struct {
	Default string `json:"default"`
}

type Features struct {
	VoiceActivation bool   `json:"voice_activation"`
	WakeWord        string `json:"wake_word"`
	AutoListen      bool   `json:"auto_listen"`
	DuckOthers      bool   `json:"duck_others"`
	HistorySize     int    `json:"history_size"`
}

var Engines = []string{"whisper", "remote", "auto"}

func Default() *Config {
	return &Config{
		OpenRouter: OpenRouter{
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "anthropic/claude-3-sonnet",
			MaxTokens: 1000,
			SiteURL:   "https://github.com/jarvis-assistant",
			SiteName:  "JARVIS Assistant",
		},
		Voice: Voice{
			Rate:   150,
			Volume: 0.8,
		},
		Speech: Speech{
			Engine:          "auto",
			Timeout:         5,
			PhraseTimeout:   1,
			EnergyThreshold: 0.015,
			WakeWindow:      2,
			MaxCommand:      10,
		},
		Camera: Camera{
			Device: "/dev/video0",
			Width:  640,
			Height: 480,
		},
		Languages: Languages{
			Default: string(lang.Default),
		},
		Features: Features{
			VoiceActivation: true,
			WakeWord:        "jarvis",
			AutoListen:      true,
			DuckOthers:      true,
			HistorySize:     50,
		},
	}
}

// Load returns the defaults overlaid with the user file at path. A missing
// file is not an error. The API key always comes from OPENROUTER_API_KEY
// when that is set.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		// Unmarshal into the populated defaults only touches keys
		// present in the file, nested objects included.
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		cfg.OpenRouter.APIKey = key
	}

	return cfg, cfg.Validate()
}

// Save writes the config as indented JSON. The API key is never persisted.
func (c *Config) Save(fs afero.Fs, path string) error {
	out := *c
	out.OpenRouter.APIKey = ""

	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	return afero.WriteFile(fs, path, append(data, '\n'), 0o644)
}

// Language is the parsed languages.default; Validate guarantees it parses.
func (c *Config) Language() lang.Code {
	l, _ := lang.Parse(c.Languages.Default)
	return l
}

func (c *Config) Validate() error {
	if _, ok := lang.Parse(c.Languages.Default); !ok {
		return fmt.Errorf("languages.default: unsupported language %q", c.Languages.Default)
	}
	if !slices.Contains(Engines, c.Speech.Engine) {
		return fmt.Errorf("speech.engine: want one of %v, got %q", Engines, c.Speech.Engine)
	}
	if c.OpenRouter.MaxTokens <= 0 {
		return fmt.Errorf("openrouter.max_tokens must be positive, got %d", c.OpenRouter.MaxTokens)
	}
	if c.Voice.Volume < 0 || c.Voice.Volume > 1 {
		return fmt.Errorf("voice.volume must be within [0, 1], got %v", c.Voice.Volume)
	}
	if c.Features.HistorySize < 2 {
		return fmt.Errorf("features.history_size must be at least 2, got %d", c.Features.HistorySize)
	}
	return nil
}

// Get returns the value at a dotted key such as "languages.default".
func (c *Config) Get(key string) (gjson.Result, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return gjson.Result{}, err
	}

	res := gjson.GetBytes(data, key)
	if !res.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return res, nil
}

// Set assigns value at a dotted key. Keys that do not map onto the
// struct are rejected and leave c untouched.
func (c *Config) Set(key string, value any) error {
	if _, err := c.Get(key); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	data, err = sjson.SetBytes(data, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	next := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(next); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	*c = *next
	return nil
}

// SetString is Set for values typed on a command line: JSON literals
// (numbers, booleans, arrays) are decoded, anything else is a string.
func (c *Config) SetString(key, raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	return c.Set(key, v)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func (s Speech) TimeoutDuration() time.Duration       { return seconds(s.Timeout) }
func (s Speech) PhraseTimeoutDuration() time.Duration { return seconds(s.PhraseTimeout) }
func (s Speech) WakeWindowDuration() time.Duration    { return seconds(s.WakeWindow) }
func (s Speech) MaxCommandDuration() time.Duration    { return seconds(s.MaxCommand) }
