package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesKeepsAllowlist(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/quotes"),
		attribute.String("member.date_of_birth", "1980-01-01"),
		attribute.Int("http.status_code", 200),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
	assert.Equal(t, attribute.Key("http.status_code"), attrs[1].Key)
}

func TestSafeErrorTrimsWrappedDetail(t *testing.T) {
	err := fmt.Errorf("rate_card_not_found: %w", errors.New("SELECT * FROM rate_cards WHERE id = 42"))
	assert.EqualError(t, SafeError(err), "rate_card_not_found")
	assert.Nil(t, SafeError(nil))
}
