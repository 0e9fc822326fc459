/*
Package config loads docsync settings from defaults, a YAML file and
DOCSYNC_* environment variables, in that order of precedence (lowest first).

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

# Sections

	global      log_level (DEBUG|INFO|WARN|ERROR), log_format (text|json)
	storage     backend (s3|memory) and the s3 bucket, endpoint and public base URL
	sync        key root, listing page sizes, retention threshold, cleanup
	cache       bbolt file holding the local cache and the fallback store
	network     transport retry and circuit breaker
	monitoring  Prometheus metrics
	api         listen address of the HTTP surface

A minimal file for a MinIO deployment:

	storage:
	  backend: s3
	  s3:
	    bucket: settings
	    endpoint: http://localhost:9000
	    force_path_style: true
	sync:
	  retention_threshold: 3
	  cleanup_on_write: true

# Environment Variables

	DOCSYNC_LOG_LEVEL, DOCSYNC_LOG_FORMAT
	DOCSYNC_BACKEND, DOCSYNC_S3_BUCKET, DOCSYNC_S3_REGION, DOCSYNC_S3_ENDPOINT,
	DOCSYNC_S3_PUBLIC_BASE_URL, DOCSYNC_S3_FORCE_PATH_STYLE
	DOCSYNC_ROOT, DOCSYNC_RETENTION_THRESHOLD, DOCSYNC_CLEANUP_ON_WRITE,
	DOCSYNC_CLEANUP_TIMEOUT
	DOCSYNC_CACHE_PATH, DOCSYNC_CACHE_ENABLED
	DOCSYNC_API_ADDRESS

Boolean variables are true only when set to "true" in any case. Numbers and
durations that fail to parse are ignored.

S3, Retry and CircuitBreaker translate the loaded settings into the option
types of the storage, retry and circuit packages.
*/
package config
