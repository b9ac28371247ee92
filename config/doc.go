// Package config provides configuration management for the habitat daemon.
//
// Configuration is read from JSON or YAML files (chosen by extension),
// layered over built-in defaults, then overridden from HABITAT_* environment
// variables and validated.
//
// # Core Components
//
// Config: log, metrics, NATS and the ordered list of sinks to load, each
// with the settings handed to its factory.
//
// Loader: merges defaults, file layers and environment overrides.
//
// SafeConfig: thread-safe wrapper using RWMutex and deep cloning.
//
// Watcher: re-reads the file through fsnotify when it changes and hands
// each valid result to a callback.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/habitat/habitat.yaml")
//	loader.AddLayer("/etc/habitat/local.yaml") // Overrides the first
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Reloading
//
//	go config.Watch(ctx, path, func(cfg *config.Config) {
//		changed := router.SetSettings(cfg.SinkSettings())
//		_ = router.Reconcile(cfg.EnabledSinks())
//		for _, name := range changed {
//			_ = router.Reload(name)
//		}
//	})
//
// # Environment Overrides
//
//	HABITAT_LOG_LEVEL, HABITAT_LOG_FORMAT, HABITAT_LOG_FILE
//	HABITAT_METRICS_ENABLED, HABITAT_METRICS_PORT
//	HABITAT_NATS_URLS (comma separated), HABITAT_NATS_SUBJECT_PREFIX
//	HABITAT_NATS_TOKEN, HABITAT_NATS_USERNAME, HABITAT_NATS_PASSWORD
package config
