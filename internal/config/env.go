package config

import (
	"strings"

	"github.com/spf13/viper"
)

// applyEnvOverrides permite sobreescribir valores de despliegue con
// variables AVSIM_* (p.ej. AVSIM_MQTT_BROKER) sin tocar el YAML.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("AVSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	overrideString(v, "app_id", &cfg.AppID)
	overrideString(v, "log_level", &cfg.LogLevel)
	overrideString(v, "scenario.directory", &cfg.Scenario.Directory)
	overrideString(v, "mqtt.broker", &cfg.MQTT.Broker)
	overrideString(v, "mqtt.username", &cfg.MQTT.Username)
	overrideString(v, "mqtt.password", &cfg.MQTT.Password)
	overrideString(v, "rabbitmq.host", &cfg.RabbitMQ.Host)
	overrideString(v, "rabbitmq.username", &cfg.RabbitMQ.Username)
	overrideString(v, "rabbitmq.password", &cfg.RabbitMQ.Password)
	overrideString(v, "eyetracker.address", &cfg.Eyetracker.Address)
	overrideString(v, "recording.root", &cfg.Recording.Root)
	overrideString(v, "webview.listen", &cfg.Webview.Listen)
	overrideString(v, "webview.mqtt_broker_ip", &cfg.Webview.BrokerIP)
	overrideString(v, "metrics.listen", &cfg.Metrics.Listen)

	if v.IsSet("mqtt.enabled") {
		cfg.MQTT.Enabled = v.GetBool("mqtt.enabled")
	}
	if v.IsSet("rabbitmq.enabled") {
		cfg.RabbitMQ.Enabled = v.GetBool("rabbitmq.enabled")
	}
	if v.IsSet("eyetracker.enabled") {
		cfg.Eyetracker.Enabled = v.GetBool("eyetracker.enabled")
	}
	if v.IsSet("scenario.tick_interval") {
		cfg.Scenario.TickInterval = v.GetFloat64("scenario.tick_interval")
	}
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}
