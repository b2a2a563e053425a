package messaging

import "strings"

// DeviceInfoMAC extracts the device MAC from a discovery topic of the
// form "devices/<mac>/info", matched against the configured wildcard
// filter (e.g. "devices/+/info"). Returns "" if the topic does not
// match the filter shape.
func DeviceInfoMAC(filter, topic string) string {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")
	if len(fparts) != len(tparts) {
		return ""
	}
	mac := ""
	for i, fp := range fparts {
		switch fp {
		case "+":
			if mac != "" {
				// More than one wildcard segment is ambiguous.
				return ""
			}
			mac = tparts[i]
		case "#":
			return ""
		default:
			if fp != tparts[i] {
				return ""
			}
		}
	}
	return mac
}

// OTATopic builds the per-device OTA command topic, e.g.
// "devices/AA:BB:CC:DD:EE:FF/ota".
func OTATopic(prefix, mac string) string {
	return prefix + "/" + mac + "/ota"
}
