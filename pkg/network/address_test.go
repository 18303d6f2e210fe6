package network

import "testing"

func TestAddressPort(t *testing.T) {
	tests := []struct {
		input Address
		port  int
		err   string
	}{
		{input: "", port: 0, err: "no address"},
		{input: ":", port: 0, err: "port is not a number"},
		{input: "https://garbage.com:99a9a", port: 0, err: "port is not a number"},
		{input: ":9000", port: 9000},
		{input: "not-garbage:9999", port: 9999},
	}

	for _, test := range tests {
		port, err := test.input.Port()
		if port != test.port || (err != nil && test.err != err.Error()) {
			t.Errorf("Test fail for expected port %v but got %v with error %v", test.port, port, err)
		}
	}
}

func TestAddressSplit(t *testing.T) {
	tests := []struct {
		input Address
		host  string
		port  int
	}{
		{input: ":8800", host: "", port: 8800},
		{input: "127.0.0.1:3333", host: "127.0.0.1", port: 3333},
		{input: "relay", host: "relay", port: 0},
		{input: "[::1]:80", host: "::1", port: 80},
	}
	for _, test := range tests {
		t.Run(string(test.input), func(t *testing.T) {
			host, port := test.input.SplitHostPort()
			if host != test.host || port != test.port {
				t.Errorf("got %q %v, want %q %v", host, port, test.host, test.port)
			}
		})
	}
}
