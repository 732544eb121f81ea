package idem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type payPayload struct {
	DocumentID int    `json:"documentId"`
	Amount     string `json:"amount"`
	Date       string `json:"date"`
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(payPayload{DocumentID: 42, Amount: "100.00", Date: "2025-03-01"})
	b := Fingerprint(payPayload{DocumentID: 42, Amount: "100.00", Date: "2025-03-01"})
	assert.Equal(t, a, b, "identical payloads must fingerprint identically")
	assert.Len(t, a, 64)
}

func TestFingerprintDiscriminates(t *testing.T) {
	a := Fingerprint(payPayload{DocumentID: 42, Amount: "100.00", Date: "2025-03-01"})
	b := Fingerprint(payPayload{DocumentID: 42, Amount: "100.01", Date: "2025-03-01"})
	assert.NotEqual(t, a, b, "a one-cent difference is a different request")
}
