package config

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceUser    ConfigSource = "user"
	SourceProject ConfigSource = "project"
	SourceFile    ConfigSource = "file"
	SourceEnv     ConfigSource = "env"
	SourceFlag    ConfigSource = "flag"
)

// TrackedConfig pairs a config with the source of each explicitly set key.
type TrackedConfig struct {
	Config  *Config
	sources map[string]ConfigSource
}

// NewTrackedConfig wraps the defaults.
func NewTrackedConfig() *TrackedConfig {
	return &TrackedConfig{Config: Default(), sources: make(map[string]ConfigSource)}
}

// SetSource records where path was last set.
func (tc *TrackedConfig) SetSource(path string, source ConfigSource) {
	tc.sources[path] = source
}

// GetSource returns where path was set, or SourceDefault.
func (tc *TrackedConfig) GetSource(path string) ConfigSource {
	if s, ok := tc.sources[path]; ok {
		return s
	}
	return SourceDefault
}

// Sources returns a copy of every explicitly set path.
func (tc *TrackedConfig) Sources() map[string]ConfigSource {
	out := make(map[string]ConfigSource, len(tc.sources))
	for k, v := range tc.sources {
		out[k] = v
	}
	return out
}
