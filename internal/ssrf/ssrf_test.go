package ssrf

import "testing"

func TestGuardRejectsNonHTTPScheme(t *testing.T) {
	if err := Guard("file:///etc/passwd"); err == nil {
		t.Fatal("expected rejection of file scheme")
	}
}

func TestGuardRejectsLocalhost(t *testing.T) {
	if err := Guard("http://localhost:8080/"); err == nil {
		t.Fatal("expected rejection of localhost")
	}
}

func TestGuardRejectsLoopbackIP(t *testing.T) {
	if err := Guard("http://127.0.0.1/"); err == nil {
		t.Fatal("expected rejection of loopback IP")
	}
}

func TestGuardRejectsPrivateIPv4(t *testing.T) {
	if err := Guard("http://10.0.0.5/"); err == nil {
		t.Fatal("expected rejection of private IPv4")
	}
	if err := Guard("http://192.168.1.1/"); err == nil {
		t.Fatal("expected rejection of private IPv4")
	}
}

func TestGuardRejectsMetadataAddress(t *testing.T) {
	if err := Guard("http://169.254.169.254/latest/meta-data/"); err == nil {
		t.Fatal("expected rejection of cloud metadata address")
	}
}

func TestGuardRejectsInternalSuffix(t *testing.T) {
	if err := Guard("http://service.internal/"); err == nil {
		t.Fatal("expected rejection of .internal suffix")
	}
}

func TestGuardAllowsPublicHTTPS(t *testing.T) {
	if err := Guard("https://93.184.216.34/"); err != nil {
		t.Fatalf("expected a public IPv4 literal to pass, got %v", err)
	}
}
