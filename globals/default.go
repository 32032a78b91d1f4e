package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "lightspeed-messenger",
	Level: hclog.LevelFromString("INFO"),
})
