// Package config provides centralized configuration management for finset.
// It loads the YAML files of a config directory, applies environment overrides,
// validates the result and resolves the on-disk data layout.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables FINSET_* (highest priority)
//	2. pipeline.yaml, interfaces.yaml, rate_limits.yaml, split.yaml
//	3. Struct tag defaults (lowest priority)
//
// Proxy credentials may come from a .env file next to the YAML files. The
// file is read into a map and never exported to the process environment.
//
// # Environment Variables
//
//	FINSET_DATA_DIR=/srv/finset
//	FINSET_LOG_LEVEL=debug
//	FINSET_START_DATE=2024-01-01
//	FINSET_END_DATE=2024-01-31
//	FINSET_SERVER_PORT=8080
//
// # Path Management
//
// Paths resolves the data layout:
//
//	data/
//	  ├── raw/bootstrap/        (calendar, replay CSV files)
//	  ├── inputs/               (universe membership)
//	  ├── silver/interface=<id>/data.csv
//	  ├── gold/features, gold/labels
//	  ├── exports/{cpt,sft,txt,stats}
//	  ├── manifests/            (task manifests, checkpoint log)
//	  └── runs/<run_id>/manifest.json
//
// # Usage
//
//	cfg, err := config.Load("configs")
//	if err != nil {
//	    return err
//	}
//	paths, err := config.NewPaths(cfg)
package config
