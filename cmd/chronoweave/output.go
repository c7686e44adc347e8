package main

import (
	"encoding/json"

	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/viper"
)

// formatJSON renders a value as indented JSON, colorized when writing to a
// terminal with colors enabled.
func formatJSON(value any) ([]byte, error) {
	if viper.GetBool("no-color") || !isTerminalOut() {
		return json.MarshalIndent(value, "", "  ")
	}
	return prettyjson.Marshal(value)
}
