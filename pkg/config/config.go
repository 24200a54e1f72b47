// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the encoder settings of the tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"avikit/pkg/pixfmt"

	"gopkg.in/yaml.v3"
)

// Config encoder configuration.
type Config struct {
	// Format of the written stream, "rgb" or "mjpeg".
	Format string `yaml:"format"`

	// Zero values are taken from the input movie.
	FrameRate float64 `yaml:"frameRate"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`

	Quality       int  `yaml:"quality"`
	Interlaced    bool `yaml:"interlaced"`
	OddFieldFirst bool `yaml:"oddFieldFirst"`

	// LogDB optional path of the log database.
	LogDB string `yaml:"logDB"`
}

// Errors.
var (
	ErrPathNotAbsolute = errors.New("path is not absolute")
	ErrInvalidValue    = errors.New("invalid value")
)

// Defaults.
const (
	DefaultFormat  = "mjpeg"
	DefaultQuality = 90
)

// NewConfig returns configuration decoded from YAML with defaults applied.
func NewConfig(configYAML []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(configYAML, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.Quality == 0 {
		c.Quality = DefaultQuality
	}

	if _, err := c.PixelFormat(); err != nil {
		return nil, err
	}
	if c.Quality < 1 || c.Quality > 100 {
		return nil, fmt.Errorf("quality %v: %w", c.Quality, ErrInvalidValue)
	}
	if c.FrameRate < 0 {
		return nil, fmt.Errorf("frameRate %v: %w", c.FrameRate, ErrInvalidValue)
	}
	if c.Width < 0 || c.Height < 0 {
		return nil, fmt.Errorf("size %vx%v: %w", c.Width, c.Height, ErrInvalidValue)
	}
	if c.LogDB != "" && !filepath.IsAbs(c.LogDB) {
		return nil, fmt.Errorf("logDB '%v': %w", c.LogDB, ErrPathNotAbsolute)
	}

	return &c, nil
}

// Load reads configuration from a file. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return NewConfig(nil)
	}
	configYAML, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return NewConfig(configYAML)
}

// PixelFormat returns the pixel format frames are written in.
func (c Config) PixelFormat() (pixfmt.Format, error) {
	switch c.Format {
	case "rgb":
		return pixfmt.FormatRGB24, nil
	case "mjpeg":
		return pixfmt.FormatMJPEG, nil
	}
	return pixfmt.FormatNone, fmt.Errorf("format '%v': %w", c.Format, ErrInvalidValue)
}
