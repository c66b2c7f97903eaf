package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "protocol":
		return protocolTemplate, nil
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

const serverTemplate = `name = "edgewire"
protocol = "protocol.toml"
listen_addr = ":7400"
admin_addr = ":7410"
admin_token = ""
cors_origins = ["http://localhost:3000"]
read_buffer_size = 32768
read_timeout = "0s"
write_timeout = "15s"
max_buffer_bytes = 16777216
log_decoded = true
echo = false

[tls]
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""

[ws]
max_message_bytes = 1048576
read_timeout = "60s"
write_timeout = "10s"
allowed_origins = []

[nats]
enabled = false
url = "nats://127.0.0.1:4222"
subject_prefix = "edgewire.decoded"
`

const protocolTemplate = `root = "message"

[codecs.kind]
type = "enum"
underlying = "uint8"
members = { ping = 0, text = 1, blob = 2 }

[codecs.line]
type = "string"
delimiter = "\r\n"
max_length = 4096

[codecs.payload]
type = "bytes"
prefix = "uint24"

[codecs.blob]
type = "frame"
fields = ["uint16", "payload"]

[codecs.message]
type = "header"
discriminator = "kind"
bodies = { ping = "uint32", text = "line", blob = "blob" }
`
