// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "killclip")
	v.SetDefault("main.timezone", "Local")
	v.SetDefault("main.log.defaultlevel", "info")
	v.SetDefault("main.log.timezone", "Local")
	v.SetDefault("main.log.console.enabled", true)
	v.SetDefault("main.log.console.level", "info")
	v.SetDefault("main.log.fileoutput.enabled", false)
	v.SetDefault("main.log.fileoutput.path", "logs/killclip.log")
	v.SetDefault("main.log.fileoutput.level", "info")
	v.SetDefault("main.log.fileoutput.maxsize", 50)
	v.SetDefault("main.log.fileoutput.maxage", 30)
	v.SetDefault("main.log.fileoutput.maxrotatedfiles", 5)

	v.SetDefault("detection.preset", PresetBalanced)
	v.SetDefault("detection.file", "")

	v.SetDefault("handoff.backend", HandoffBackendFile)
	v.SetDefault("handoff.path", "data/handoff")
	v.SetDefault("handoff.dsn", "")
	v.SetDefault("handoff.pollinterval", 2*time.Second)

	v.SetDefault("processing.outputdir", "clips")
	v.SetDefault("processing.groupinggap", 0.0)
	v.SetDefault("processing.deletesource", true)
	v.SetDefault("processing.ffmpegpath", "")
	v.SetDefault("processing.ffprobepath", "")
	v.SetDefault("processing.exporttimeout", time.Duration(0))
	v.SetDefault("processing.lockfile", "data/killclip-process.lock")
	v.SetDefault("processing.reportretention", 24*time.Hour)

	v.SetDefault("upload.enabled", false)
	v.SetDefault("upload.target", UploadTargetLocal)
	v.SetDefault("upload.maxretries", 3)
	v.SetDefault("upload.initialdelay", 5*time.Second)
	v.SetDefault("upload.maxdelay", 2*time.Minute)
	v.SetDefault("upload.local.path", "uploads")
	v.SetDefault("upload.ftp.port", 21)
	v.SetDefault("upload.ftp.timeout", 30*time.Second)
	v.SetDefault("upload.sftp.port", 22)
	v.SetDefault("upload.sftp.timeout", 30*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "killclip")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", "127.0.0.1:8080")
}
