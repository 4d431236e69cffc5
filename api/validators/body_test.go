package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
)

type priceBody struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
	Pct   decimal.Decimal `json:"pct" validate:"gte=0,lte=100"`
}

func decodeString(t *testing.T, body string) (priceBody, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest priceBody
	err := DecodeJSONBody(req, &dest)
	return dest, err
}

func TestDecodeJSONBodyAcceptsNumberOrString(t *testing.T) {
	dest, err := decodeString(t, `{"name":"soup","price":12.5,"pct":"10"}`)
	require.NoError(t, err)
	assert.True(t, dest.Price.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, dest.Pct.Equal(decimal.NewFromInt(10)))
}

func TestDecodeJSONBodyRejectsNegativeMoney(t *testing.T) {
	_, err := decodeString(t, `{"name":"soup","price":"-1","pct":5}`)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be at least 0", details["price"])
}

func TestDecodeJSONBodyRejectsPercentOverHundred(t *testing.T) {
	_, err := decodeString(t, `{"name":"soup","price":1,"pct":101}`)
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Contains(t, details, "pct")
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	_, err := decodeString(t, `{"name":"soup","price":1,"pct":1,"extra":true}`)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.Error(t, err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := ParseQueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, got)
}

func TestParseQueryBoolAndDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?available=true&date=2026-07-01", nil)
	available, err := ParseQueryBool(req, "available")
	require.NoError(t, err)
	require.NotNil(t, available)
	assert.True(t, *available)

	date, err := ParseQueryDate(req, "date")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", *date)

	bad := httptest.NewRequest(http.MethodGet, "/?date=07/01/2026", nil)
	_, err = ParseQueryDate(bad, "date")
	assert.Error(t, err)
}
