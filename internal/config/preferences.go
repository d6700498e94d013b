package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bamsammich/ferry/internal/checksum"
	"github.com/bamsammich/ferry/internal/filter"
)

// Platform selects a set of defaults.
type Platform int

const (
	PlatformLinux Platform = iota
	PlatformMac
	PlatformWindows
)

func (p Platform) String() string {
	switch p {
	case PlatformMac:
		return "mac"
	case PlatformWindows:
		return "windows"
	default:
		return "linux"
	}
}

// CurrentPlatform maps runtime.GOOS onto a Platform.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMac
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// Preferences are the resolved settings. They are built once and passed by
// pointer; nothing mutates them afterwards. BWLimit is in bytes per second
// with 0 meaning unlimited.
type Preferences struct {
	ChecksumAlgorithm checksum.Algorithm `validate:"oneof=md5 sha1 sha256 sha512 crc32 xxhash blake3"`
	Workers           int                `validate:"min=1,max=256"`
	BWLimit           int64              `validate:"gte=0"`
	LoginRetries      int                `validate:"gte=0,lte=10"`
	LogLevel          string             `validate:"oneof=debug info warn error"`
	UploadSkip        []string           `validate:"dive,required"`
	S3Region          string
	S3Endpoint        string `validate:"omitempty,url"`
	SFTPPort          int    `validate:"min=1,max=65535"`
	SFTPKeyFile       string
	VaultScryptN      int           `validate:"min=2"`
	ConnectionTimeout time.Duration `validate:"gte=0s"`
}

var validate = validator.New()

// Defaults returns the built-in preferences for p.
func Defaults(p Platform) Preferences {
	prefs := Preferences{
		ChecksumAlgorithm: checksum.SHA256,
		Workers:           4,
		LoginRetries:      3,
		LogLevel:          "warn",
		S3Region:          "us-east-1",
		SFTPPort:          22,
		VaultScryptN:      1 << 15,
		ConnectionTimeout: 30 * time.Second,
	}
	switch p {
	case PlatformMac:
		prefs.UploadSkip = []string{".DS_Store", "._*", "*~", ".Trashes"}
	case PlatformWindows:
		prefs.UploadSkip = []string{"Thumbs.db", "desktop.ini", "*~"}
	default:
		prefs.UploadSkip = []string{"*~", ".*.swp"}
	}
	return prefs
}

// New resolves every key: environment (FERRY_*) first, then f, then the
// platform default.
func New(p Platform, f File) (*Preferences, error) {
	return resolve(p, f, os.LookupEnv)
}

func resolve(p Platform, f File, env func(string) (string, bool)) (*Preferences, error) {
	def := Defaults(p)
	r := resolver{env: env}
	prefs := &Preferences{
		ChecksumAlgorithm: checksum.Algorithm(r.str("checksum.algorithm", f.Checksum.Algorithm, string(def.ChecksumAlgorithm))),
		Workers:           r.int("workers", f.Workers, def.Workers),
		BWLimit:           r.size("bwlimit", f.BWLimit, def.BWLimit),
		LoginRetries:      r.int("login.retries", f.Login.Retries, def.LoginRetries),
		LogLevel:          strings.ToLower(r.str("log.level", f.Log.Level, def.LogLevel)),
		UploadSkip:        r.list("queue.upload.skip", f.Queue.Upload.Skip, def.UploadSkip),
		S3Region:          r.str("s3.region", f.S3.Region, def.S3Region),
		S3Endpoint:        r.str("s3.endpoint", f.S3.Endpoint, def.S3Endpoint),
		SFTPPort:          r.int("sftp.port", f.SFTP.Port, def.SFTPPort),
		SFTPKeyFile:       r.str("sftp.keyfile", f.SFTP.KeyFile, def.SFTPKeyFile),
		VaultScryptN:      r.int("vault.scrypt.n", f.Vault.Scrypt.N, def.VaultScryptN),
		ConnectionTimeout: r.duration("connection.timeout", f.Connection.Timeout, def.ConnectionTimeout),
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	return prefs, nil
}

// Validate checks field constraints.
func (p *Preferences) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("config: %s fails %q (value: %v)", e.Field(), e.Tag(), e.Value())
		}
		return err
	}
	if n := p.VaultScryptN; n&(n-1) != 0 {
		return fmt.Errorf("config: vault.scrypt.n must be a power of two, got %d", n)
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (p *Preferences) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(p.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return l
}

// SkipFilter compiles UploadSkip into an exclude chain.
func (p *Preferences) SkipFilter() (*filter.Chain, error) {
	c := filter.NewChain()
	for _, pattern := range p.UploadSkip {
		if err := c.AddExclude(pattern); err != nil {
			return nil, fmt.Errorf("queue.upload.skip: %w", err)
		}
	}
	return c, nil
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return "FERRY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

type resolver struct {
	env  func(string) (string, bool)
	errs []error
}

func (r *resolver) raw(key string, file *string) (string, bool) {
	if v, ok := r.env(EnvName(key)); ok && v != "" {
		return v, true
	}
	if file != nil {
		return *file, true
	}
	return "", false
}

func (r *resolver) str(key string, file *string, def string) string {
	if v, ok := r.raw(key, file); ok {
		return v
	}
	return def
}

func (r *resolver) int(key string, file *int, def int) int {
	if v, ok := r.env(EnvName(key)); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", EnvName(key), err))
			return def
		}
		return n
	}
	if file != nil {
		return *file
	}
	return def
}

func (r *resolver) size(key string, file *string, def int64) int64 {
	v, ok := r.raw(key, file)
	if !ok || v == "" || v == "0" {
		return def
	}
	n, err := filter.ParseSize(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *resolver) duration(key string, file *string, def time.Duration) time.Duration {
	v, ok := r.raw(key, file)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

// list splits the environment value on commas.
func (r *resolver) list(key string, file, def []string) []string {
	if v, ok := r.env(EnvName(key)); ok {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if file != nil {
		return file
	}
	return def
}
