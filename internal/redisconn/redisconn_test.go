package redisconn

import "testing"

func TestOptionsURL(t *testing.T) {
	opts, err := Options("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestOptionsAzureForm(t *testing.T) {
	opts, err := Options("cache.example.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache.example.net:6380" || opts.Password != "abc=" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected tls")
	}
}

func TestOptionsEmpty(t *testing.T) {
	if _, err := Options(""); err == nil {
		t.Fatalf("expected error")
	}
}
