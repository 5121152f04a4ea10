package cmd

import (
	"github.com/spf13/pflag"
)

// listenOverrides copies --host and --port onto the configured listen address
// when the user set them explicitly.
func listenOverrides(flags *pflag.FlagSet, host *string, port *int) error {
	if flags.Changed("host") {
		value, err := flags.GetString("host")
		if err != nil {
			return err
		}
		*host = value
	}
	if flags.Changed("port") {
		value, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		*port = value
	}
	return nil
}
