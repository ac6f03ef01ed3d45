package config

import (
	"log/slog"

	"github.com/jpalmerr/eventwatch"
)

// BuildOptions converts parsed configuration into Watcher options.
//
// Zero-valued fields produce no option, so the library defaults apply.
func BuildOptions(cfg *Config) []eventwatch.Option {
	opts := []eventwatch.Option{
		eventwatch.WithKind(cfg.Kind),
	}

	if cfg.Token != "" {
		opts = append(opts, eventwatch.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, eventwatch.WithBaseURL(cfg.BaseURL))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, eventwatch.WithUserAgent(cfg.UserAgent))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, eventwatch.WithAPIVersion(cfg.APIVersion))
	}
	if cfg.DefaultInterval != 0 {
		opts = append(opts, eventwatch.WithDefaultInterval(cfg.DefaultInterval.Duration()))
	}
	if cfg.MinInterval != 0 {
		opts = append(opts, eventwatch.WithMinInterval(cfg.MinInterval.Duration()))
	}
	if cfg.RequestTimeout != 0 {
		opts = append(opts, eventwatch.WithRequestTimeout(cfg.RequestTimeout.Duration()))
	}
	if cfg.SeenCacheSize != 0 {
		opts = append(opts, eventwatch.WithSeenCacheSize(cfg.SeenCacheSize))
	}
	if cfg.HistorySize != 0 {
		opts = append(opts, eventwatch.WithHistorySize(cfg.HistorySize))
	}
	if cfg.Port != 0 {
		opts = append(opts, eventwatch.WithPort(cfg.Port))
	}
	if len(cfg.FailOnStatus) > 0 {
		opts = append(opts, eventwatch.WithFailOnStatus(cfg.FailOnStatus...))
	}
	if identity := buildIdentity(cfg.Identity); identity != nil {
		opts = append(opts, eventwatch.WithIdentity(identity))
	}

	return opts
}

// BuildWatcher creates a Watcher for cfg. extra options are applied after
// the configured ones.
func BuildWatcher(cfg *Config, logger *slog.Logger, extra ...eventwatch.Option) (*eventwatch.Watcher, error) {
	resource, err := eventwatch.NewResource(cfg.Owner, cfg.Repo)
	if err != nil {
		return nil, err
	}

	opts := BuildOptions(cfg)
	if logger != nil {
		opts = append(opts, eventwatch.WithLogger(logger))
	}
	opts = append(opts, extra...)

	return eventwatch.New(resource, opts...)
}

// buildIdentity maps the identity setting to an IdentityFunc.
// Returns nil for default/empty, letting the watcher pick by kind.
func buildIdentity(name string) eventwatch.IdentityFunc {
	switch name {
	case "push":
		return eventwatch.PushIdentity
	case "event":
		return eventwatch.EnvelopeIdentity
	default:
		return nil
	}
}
