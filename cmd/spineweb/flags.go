package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/spineio/spineweb.go"
)

const configFlag = "config"

// mustBindPFlag binds key to flag and panics if the binding fails.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// bindConfigFlags registers a persistent flag per config key and binds it
// to v, so that flags take precedence over the environment and the config
// file.
func bindConfigFlags(command *cobra.Command, v *viper.Viper) {
	def := spineweb.DefaultConfig()
	flags := command.PersistentFlags()

	flags.String(configFlag, "", "path of a config file (yaml, json or toml)")

	flags.String(spineweb.KeyEndpointURL, def.EndpointURL, "base URL of the backend routes")
	mustBindPFlag(v, spineweb.KeyEndpointURL, flags.Lookup(spineweb.KeyEndpointURL))

	flags.String(spineweb.KeyPushStoreURL, def.PushStoreURL, "websocket URL of the push store")
	mustBindPFlag(v, spineweb.KeyPushStoreURL, flags.Lookup(spineweb.KeyPushStoreURL))

	flags.String(spineweb.KeyPushStoreRESTURL, def.PushStoreRESTURL, "base URL of push store reads, derived from the websocket URL when empty")
	mustBindPFlag(v, spineweb.KeyPushStoreRESTURL, flags.Lookup(spineweb.KeyPushStoreRESTURL))

	flags.String(spineweb.KeyActor, def.Actor, "the user on whose behalf requests are made")
	mustBindPFlag(v, spineweb.KeyActor, flags.Lookup(spineweb.KeyActor))

	flags.String(spineweb.KeyCodec, def.Codec, "request encoding: json or cbor")
	mustBindPFlag(v, spineweb.KeyCodec, flags.Lookup(spineweb.KeyCodec))

	flags.Duration(spineweb.KeyHTTPTimeout, def.HTTPTimeout, "timeout of a single backend request")
	mustBindPFlag(v, spineweb.KeyHTTPTimeout, flags.Lookup(spineweb.KeyHTTPTimeout))

	flags.Int(spineweb.KeyRetryMax, def.RetryMax, "number of retries of failed backend requests")
	mustBindPFlag(v, spineweb.KeyRetryMax, flags.Lookup(spineweb.KeyRetryMax))

	flags.Duration(spineweb.KeyKeepAliveInterval, def.KeepAliveInterval, "interval between subscription keep-up requests")
	mustBindPFlag(v, spineweb.KeyKeepAliveInterval, flags.Lookup(spineweb.KeyKeepAliveInterval))

	flags.String(spineweb.KeyLogLevel, def.LogLevel, "log level: debug, info, warn or error")
	mustBindPFlag(v, spineweb.KeyLogLevel, flags.Lookup(spineweb.KeyLogLevel))

	flags.String(spineweb.KeyLogFormat, def.LogFormat, "log format: text, json or zerolog")
	mustBindPFlag(v, spineweb.KeyLogFormat, flags.Lookup(spineweb.KeyLogFormat))

	flags.String(spineweb.KeyLogPath, def.LogPath, "file zerolog output is appended to")
	mustBindPFlag(v, spineweb.KeyLogPath, flags.Lookup(spineweb.KeyLogPath))
}
