package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the configuration whenever the config file changes and
// hands the result to onChange. A reload that fails validation passes a nil
// config and the error; the previous configuration stays in effect.
//
// Watch requires a config file to have been read; without one it is a no-op.
func Watch(onChange func(*Config, error)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		reload(e, onChange)
	})
	viper.WatchConfig()
}

// reload handles one file system event. Chmod and remove events carry no new
// content and are ignored.
func reload(e fsnotify.Event, onChange func(*Config, error)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	onChange(Load())
}
