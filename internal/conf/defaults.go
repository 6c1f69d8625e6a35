// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values. main.debug and api.timeout are
// left unset on purpose; applyEnvironmentProfile derives them.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("main.name", "weapp")
	v.SetDefault("main.version", "1.0.0")
	v.SetDefault("main.environment", EnvDevelopment)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", "")

	v.SetDefault("applog.minlevel", "DEBUG")
	v.SetDefault("applog.categories", []string{})
	v.SetDefault("applog.maxlogs", 500)
	v.SetDefault("applog.uploadurl", "")
	v.SetDefault("applog.uploadtrigger", "ERROR")
	v.SetDefault("applog.uploaddebounce", 5*time.Second)
	v.SetDefault("applog.remoteconfigurl", "")

	v.SetDefault("queue.maxretries", 5)
	v.SetDefault("queue.basedelay", 500*time.Millisecond)
	v.SetDefault("queue.maxdelay", 8*time.Second)
	v.SetDefault("queue.jitter", false)

	v.SetDefault("api.baseurl", "")
	v.SetDefault("api.baseurls", map[string]string{
		EnvDevelopment: "https://dev-api.example.com",
		EnvStaging:     "https://staging-api.example.com",
		EnvProduction:  "https://api.example.com",
	})

	v.SetDefault("payment.confirmenabled", true)
	v.SetDefault("payment.mininterval", 1500*time.Millisecond)

	v.SetDefault("share.enabledefaultstrategy", true)
	v.SetDefault("share.title", "")
	v.SetDefault("share.path", "")
	v.SetDefault("share.imageurl", "")

	v.SetDefault("analytics.capacity", 10)
	v.SetDefault("analytics.endpoint", "/analytics/events")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "weapp.db")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.samplerate", 1.0)

	v.SetDefault("alerts.urls", []string{})
	v.SetDefault("alerts.minlevel", "FATAL")

	v.SetDefault("transport.kind", "http")
	v.SetDefault("transport.broker", "tcp://localhost:1883")
	v.SetDefault("transport.clientid", "weapp")
	v.SetDefault("transport.topicprefix", "weapp")

	v.SetDefault("devconsole.enabled", false)
	v.SetDefault("devconsole.listen", "127.0.0.1:8089")
}
