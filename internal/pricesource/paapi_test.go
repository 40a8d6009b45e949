package pricesource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPAAPINotConfigured(t *testing.T) {
	source := NewPAAPISource("", "", "", "www.amazon.in", testLogger())

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPAAPIEligibilityPending(t *testing.T) {
	source := NewPAAPISource("cred-id", "cred-secret", "ghost-21", "www.amazon.in", testLogger())

	_, err := source.FetchHistory(context.Background(), "B09Y2MYL5C", "IN")
	assert.ErrorIs(t, err, ErrEligibilityPending)
}

func TestPAAPIAffiliateURL(t *testing.T) {
	tagged := NewPAAPISource("cred-id", "cred-secret", "ghost-21", "www.amazon.in", testLogger())
	assert.Equal(t, "https://www.amazon.in/dp/B09Y2MYL5C?tag=ghost-21",
		tagged.AffiliateURL("B09Y2MYL5C", "IN"))

	untagged := NewPAAPISource("cred-id", "cred-secret", "", "www.amazon.in", testLogger())
	assert.Equal(t, "https://www.amazon.in/dp/B09Y2MYL5C",
		untagged.AffiliateURL("B09Y2MYL5C", "IN"))
}
