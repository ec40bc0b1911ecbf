package crypto

import (
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	raw[3] = 0x42
	addr := NewAddress(KalePrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}

	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var viaText Address
	if err := viaText.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !viaText.Equal(addr) {
		t.Fatalf("text round trip mismatch")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "kale1notvalid", "hello"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestZeroAddress(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}
	if zero.String() != "" {
		t.Fatalf("zero address should render empty")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "user.keystore")
	if err := SaveToKeystore(path, key, "passphrase"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("keystore returned a different key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if !restored.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("bytes round trip changed the key")
	}
}
