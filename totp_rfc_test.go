package authcore

import (
	"strings"
	"testing"
	"time"
)

func TestTOTPVerifyRFCVectorsSHA1(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "authcore",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      0,
	})
	secret := []byte("12345678901234567890")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA1 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA256(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "authcore",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA256",
		Skew:      0,
	})
	secret := []byte("12345678901234567890123456789012")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	}

	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA256 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA512(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "authcore",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA512",
		Skew:      0,
	})
	secret := []byte("1234567890123456789012345678901234567890123456789012345678901234")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	}

	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA512 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRejectsWrongCode(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "authcore", Digits: 8, Period: 30, Algorithm: "SHA1", Skew: 0})
	secret := []byte("12345678901234567890")

	ok, err := m.VerifyCode(secret, "00000000", time.Unix(59, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("wrong code verified")
	}
}

func TestTOTPVerifyMalformedCode(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "authcore", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		ok, err := m.VerifyCode(secret, code, time.Unix(59, 0))
		if err != nil {
			t.Fatalf("malformed code %q errored: %v", code, err)
		}
		if ok {
			t.Fatalf("malformed code %q verified", code)
		}
	}
}

func TestTOTPSkewAcceptsAdjacentSteps(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "authcore", Digits: 8, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")

	// Code for the t=59 step verified one period later, inside the skew.
	ok, err := m.VerifyCode(secret, "94287082", time.Unix(59+30, 0))
	if err != nil || !ok {
		t.Fatalf("adjacent step rejected: ok=%v err=%v", ok, err)
	}

	// Two periods out is past the skew window.
	ok, err = m.VerifyCode(secret, "94287082", time.Unix(59+60, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("code outside skew window verified")
	}
}

func TestTOTPProvisionURI(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "authcore", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")

	for _, want := range []string{
		"otpauth://totp/",
		"secret=JBSWY3DPEHPK3PXP",
		"issuer=authcore",
		"digits=6",
		"period=30",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, want) {
			t.Fatalf("uri %q missing %q", uri, want)
		}
	}
}
