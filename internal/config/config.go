// Package config loads the optional ferry configuration file and resolves
// it, with the environment and per-platform defaults, into Preferences.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File mirrors config.toml. Unset keys stay nil so the resolver can tell
// them apart from zero values.
type File struct {
	Checksum   ChecksumSection   `toml:"checksum"`
	Workers    *int              `toml:"workers"`
	BWLimit    *string           `toml:"bwlimit"`
	Login      LoginSection      `toml:"login"`
	Log        LogSection        `toml:"log"`
	Queue      QueueSection      `toml:"queue"`
	S3         S3Section         `toml:"s3"`
	SFTP       SFTPSection       `toml:"sftp"`
	Vault      VaultSection      `toml:"vault"`
	Connection ConnectionSection `toml:"connection"`
}

type ChecksumSection struct {
	Algorithm *string `toml:"algorithm"`
}

type LoginSection struct {
	Retries *int `toml:"retries"`
}

type LogSection struct {
	Level *string `toml:"level"`
}

type QueueSection struct {
	Upload struct {
		Skip []string `toml:"skip"`
	} `toml:"upload"`
}

type S3Section struct {
	Region   *string `toml:"region"`
	Endpoint *string `toml:"endpoint"`
}

type SFTPSection struct {
	Port    *int    `toml:"port"`
	KeyFile *string `toml:"keyfile"`
}

type VaultSection struct {
	Scrypt struct {
		N *int `toml:"n"`
	} `toml:"scrypt"`
}

type ConnectionSection struct {
	Timeout *string `toml:"timeout"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ferry", "config.toml")
}

// Load reads the file at Path. A missing file yields a zero File.
func Load() (File, error) {
	return LoadFile(Path())
}

// LoadFile reads path. An empty or missing path yields a zero File.
func LoadFile(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, nil
		}
		return File{}, err
	}
	return f, nil
}
