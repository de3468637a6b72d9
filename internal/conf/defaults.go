// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("api.baseurl", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.useragent", "leafscan")

	v.SetDefault("staging.maxbytes", 20<<20)

	v.SetDefault("history.pollinterval", 30*time.Second)

	v.SetDefault("uploads.cachettl", 10*time.Minute)
	v.SetDefault("uploads.ratelimit", 4.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/leafscan.log")
	v.SetDefault("logging.file.level", "")

	v.SetDefault("telemetry.sentry.enabled", false)
	v.SetDefault("telemetry.sentry.dsn", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("preferences.path", DefaultPreferencesPath())

	v.SetDefault("ui.theme", "dark")
	v.SetDefault("ui.nocolor", false)
}
