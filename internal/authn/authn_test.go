package authn

import (
	"testing"
	"time"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	const md5Hex = "5f4dcc3b5aa765d61d8327deb882cf99" // md5("password")
	encoded, err := HashMD5Password(md5Hex)
	if err != nil {
		t.Fatalf("HashMD5Password: %v", err)
	}
	ok, err := VerifyMD5Password(md5Hex, encoded)
	if err != nil {
		t.Fatalf("VerifyMD5Password: %v", err)
	}
	if !ok {
		t.Fatalf("expected verification to succeed for the correct password")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	t.Parallel()

	encoded, _ := HashMD5Password("5f4dcc3b5aa765d61d8327deb882cf99")
	ok, err := VerifyMD5Password("00000000000000000000000000000000", encoded)
	if err != nil {
		t.Fatalf("VerifyMD5Password: %v", err)
	}
	if ok {
		t.Fatalf("expected verification to fail for the wrong password")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	if _, err := VerifyMD5Password("x", "not-a-hash"); err != ErrMalformedHash {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
}

func TestCacheServesRepeatedVerifyWithoutRehashing(t *testing.T) {
	t.Parallel()

	encoded, _ := HashMD5Password("5f4dcc3b5aa765d61d8327deb882cf99")
	c := NewCache(time.Hour, time.Hour)

	ok1, err := c.Verify("5f4dcc3b5aa765d61d8327deb882cf99", encoded)
	if err != nil || !ok1 {
		t.Fatalf("expected first verify to succeed, err=%v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", c.Len())
	}
	ok2, err := c.Verify("5f4dcc3b5aa765d61d8327deb882cf99", encoded)
	if err != nil || !ok2 {
		t.Fatalf("expected cached verify to succeed, err=%v", err)
	}
}

func TestCacheSweepDropsExpiredEntries(t *testing.T) {
	t.Parallel()

	encoded, _ := HashMD5Password("5f4dcc3b5aa765d61d8327deb882cf99")
	c := NewCache(10*time.Millisecond, time.Hour)
	if _, err := c.Verify("5f4dcc3b5aa765d61d8327deb882cf99", encoded); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	c.Sweep()
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be swept, got %d entries", c.Len())
	}
}
