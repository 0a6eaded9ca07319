// Package config loads config.yaml for the bridge.
//
// Values come from built-in defaults, then the file, then any ZIGBRIDGE_*
// variable named by an env struct tag (ZIGBRIDGE_MQTT_PASSWORD,
// ZIGBRIDGE_INFLUXDB_TOKEN and so on). Keep secrets in the environment.
//
//	cfg, err := config.Load(config.Path())
package config
