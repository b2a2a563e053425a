package messaging

import "testing"

func TestDeviceInfoMAC(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   string
	}{
		{"devices/+/info", "devices/AA:BB:CC:DD:EE:FF/info", "AA:BB:CC:DD:EE:FF"},
		{"devices/+/info", "devices/aabbcc/info", "aabbcc"},
		{"devices/+/info", "devices/aabbcc/status", ""},
		{"devices/+/info", "other/aabbcc/info", ""},
		{"devices/+/info", "devices/info", ""},
		{"devices/+/info", "devices/a/b/info", ""},
		{"fleet/+/announce", "fleet/node-7/announce", "node-7"},
	}
	for _, tt := range tests {
		got := DeviceInfoMAC(tt.filter, tt.topic)
		if got != tt.want {
			t.Errorf("DeviceInfoMAC(%q, %q) = %q, want %q", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestOTATopic(t *testing.T) {
	got := OTATopic("devices", "AA:BB:CC:DD:EE:FF")
	want := "devices/AA:BB:CC:DD:EE:FF/ota"
	if got != want {
		t.Errorf("OTATopic = %q, want %q", got, want)
	}
}
