package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "spectrod":
		return serverTemplate, nil
	case "client", "spectroctl":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `addr = "127.0.0.1:7500"
# advertise_addr = "10.0.0.12:7500"
service_name = "spectrod"
max_frame_bytes = 8388608
shutdown_timeout = "5s"

[backend]
emulate = true
devices = 1
seed = 0
acquire_delay = 1.0

[registry]
endpoints = []
ttl = 10
dial_timeout = "3s"

[limits]
rate = 0.0
burst = 1
call_timeout = "0s"

[admin]
addr = "127.0.0.1:7501"

[log]
level = "info"
json = false
no_color = false
`

const clientTemplate = `addr = "127.0.0.1:7500"
mode = "oneshot"
pool_size = 4
timeout = "0s"
service_name = "spectrod"
balancer = "affinity"
affinity_key = ""

[registry]
endpoints = []
dial_timeout = "3s"

[log]
level = "warn"
`
