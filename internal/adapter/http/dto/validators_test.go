package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := RegisterRequest{
		Username: "  alice  ",
		Password: "  pass1234  ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "pass1234", req.Password)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := DepositRequest{
		Asset:  "<script>alert('x')</script>",
		Amount: 100,
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Asset, "&lt;script&gt;")
	assert.NotContains(t, req.Asset, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	url := "  https://example.com/webhook  "
	req := RegistryRequest{
		AcceptedAssets: []string{"USDC"},
		PreferredAsset: "USDC",
		WebhookURL:     &url,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "https://example.com/webhook", *req.WebhookURL)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := RegistryRequest{
		AcceptedAssets: []string{"USDC"},
		PreferredAsset: "USDC",
		WebhookURL:     nil,
	}
	SanitizeStruct(&req)
	assert.Nil(t, req.WebhookURL)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"USDC",
		"SOL",
		"wSOL-2022",
		"asset_b",
		"a.b.c",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"US DC",       // space
		"usd<c>",      // angle brackets
		"usdc;DROP",   // semicolon
		"",            // empty
		"hello world", // space
		"usdc\n001",   // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}
