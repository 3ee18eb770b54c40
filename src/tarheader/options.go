package tarheader

import (
	"log/slog"

	"github.com/aurora-is-near/tarmeta/src/extrecord"
	"github.com/aurora-is-near/tarmeta/src/tarblock"
)

const (
	defaultMaxLongNameSize    = 1 << 20
	defaultMaxExtendedHeaders = 64
)

// Option configures a Reader or Writer.
type Option interface {
	applyOption(config *activeConfig)
}

type activeConfig struct {
	validate           tarblock.ValidateOptions
	ignoreEOT          bool
	gnu                bool
	features           extrecord.Features
	maxLongNameSize    int64
	maxExtendedHeaders int
	logger             *slog.Logger
}

func newConfig(options []Option) activeConfig {
	config := activeConfig{
		gnu:                true,
		features:           extrecord.AllFeatures,
		maxLongNameSize:    defaultMaxLongNameSize,
		maxExtendedHeaders: defaultMaxExtendedHeaders,
		logger:             slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		opt.applyOption(&config)
	}
	return config
}

func (config *activeConfig) format() tarblock.Format {
	if config.gnu {
		return tarblock.FormatGNU
	}
	return tarblock.FormatUSTAR
}

type optionFunc func(config *activeConfig)

func (f optionFunc) applyOption(config *activeConfig) { f(config) }

// OptCheckMagic rejects headers without the "ustar" magic.
var OptCheckMagic Option = optionFunc(func(config *activeConfig) {
	config.validate.CheckMagic = true
})

// OptCheckVersion rejects headers without the POSIX "00" version. GNU headers fail this check.
var OptCheckVersion Option = optionFunc(func(config *activeConfig) {
	config.validate.CheckVersion = true
})

// OptIgnoreChecksum skips header checksum validation.
var OptIgnoreChecksum Option = optionFunc(func(config *activeConfig) {
	config.validate.IgnoreChecksum = true
})

// OptIgnoreEOT treats zero blocks as padding instead of the end of the archive.
var OptIgnoreEOT Option = optionFunc(func(config *activeConfig) {
	config.ignoreEOT = true
})

type gnuOption bool

func (opt gnuOption) applyOption(config *activeConfig) {
	config.gnu = bool(opt)
}

// OptGNU enables or disables GNU long names and GNU header magic when writing. Enabled by default.
func OptGNU(enabled bool) Option {
	return gnuOption(enabled)
}

type featuresOption extrecord.Features

func (opt featuresOption) applyOption(config *activeConfig) {
	config.features = extrecord.Features(opt)
}

// OptFeatures selects the extended attributes that are encoded and decoded. All by default.
func OptFeatures(features extrecord.Features) Option {
	return featuresOption(features)
}

type maxLongNameSizeOption int64

func (opt maxLongNameSizeOption) applyOption(config *activeConfig) {
	config.maxLongNameSize = int64(opt)
}

// OptMaxLongNameSize bounds the buffer allocated for a GNU long name or link. 1 MiB by default.
func OptMaxLongNameSize(size int64) Option {
	return maxLongNameSizeOption(size)
}

type maxExtendedHeadersOption int

func (opt maxExtendedHeadersOption) applyOption(config *activeConfig) {
	config.maxExtendedHeaders = int(opt)
}

// OptMaxExtendedHeaders bounds the number of extended headers preceding one entry.
func OptMaxExtendedHeaders(n int) Option {
	return maxExtendedHeadersOption(n)
}

type loggerOption struct {
	logger *slog.Logger
}

func (opt loggerOption) applyOption(config *activeConfig) {
	if opt.logger != nil {
		config.logger = opt.logger
	}
}

// OptLogger sets the logger for detected extensions and discarded records.
func OptLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}
