package util

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the inspected environment variables.
const EnvPrefix = "PENCIL"

// GetSubViper returns the named section of v, or an empty viper if the section is absent.  The result
// is always initialised with InitViper.
func GetSubViper(v *viper.Viper, key string) *viper.Viper {
	n := v.Sub(key)
	if n == nil {
		n = viper.New()
	}
	InitViper(n, key)
	return n
}

// InitViper sets up env var handling for a viper. This must be run on every created sub viper as these settings
// are not persisted to nested viper instances.
func InitViper(v *viper.Viper, subViperName string) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if subViperName != "" {
		// Sub viper environment variables are accessed via <EnvPrefix>_<subViperName>_<varName>
		v.SetEnvPrefix(EnvPrefix + "_" + strings.ToUpper(subViperName))
	} else {
		v.SetEnvPrefix(EnvPrefix)
	}
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
}

// ReadConfigOverlay overlays the file at path on top of the values already known to v.  A missing or
// unparsable file is logged and otherwise ignored, leaving the defaults in place.  Keys listed in aliases
// are renamed to their canonical names once the file is loaded.
func ReadConfigOverlay(v *viper.Viper, path string, aliases map[string]string, logger logrus.FieldLogger) bool {
	if path == "" {
		return false
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		logger.WithError(err).WithField("path", path).Warn("Unable to load configuration file, using defaults")
		return false
	}
	// RegisterAlias moves values already read from the file under the canonical key, so it must run
	// after ReadInConfig.
	for alias, key := range aliases {
		v.RegisterAlias(alias, key)
	}
	logger.WithField("path", path).Info("Loaded configuration file")
	return true
}
