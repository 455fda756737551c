package config

import "time"

// Application constants
const (
	AppName = "finset"

	// EnvPrefix namespaces environment overrides (FINSET_DATA_DIR, ...)
	EnvPrefix = "FINSET"

	// DefaultDomain is the rate limit entry used when a source domain has none
	DefaultDomain = "default"

	// Fallbacks when rate_limits.yaml has no usable entry
	DefaultRetry       = 3
	DefaultConcurrency = 2
	DefaultRate        = 1.0
	DefaultCapacity    = 1

	// Layout under the data directory
	RawDirName       = "raw"
	BootstrapDirName = "bootstrap"
	InputsDirName    = "inputs"
	SilverDirName    = "silver"
	GoldDirName      = "gold"
	ExportsDirName   = "exports"
	ManifestsDirName = "manifests"
	RunsDirName      = "runs"

	CalendarFileName     = "trading_calendar.csv"
	GoldFeaturesFileName = "features_gold.csv"
	GoldLabelsFileName   = "labels_gold.csv"
	SilverFileName       = "data.csv"
	RunManifestFileName  = "manifest.json"

	// Per-stage defaults for the operations manager
	DefaultStageTimeout = 30 * time.Minute
	FetchStageTimeout   = 2 * time.Hour
)
