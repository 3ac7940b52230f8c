package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseKlineBar_ValidBar(t *testing.T) {
	bar := klineBar{CloseTimeMs: "1700000000000", Interval: "1h", Open: "100.5", High: "101", Low: "99.5", Close: "100.8", Volume: "12.34"}
	candle, ok := parseKlineBar(bar)
	require.True(t, ok)
	assert.Equal(t, 100.5, candle.Open)
	assert.Equal(t, 100.8, candle.Close)
	assert.Equal(t, 12.34, candle.Volume)
}

func TestParseKlineBar_MalformedFieldIsRejected(t *testing.T) {
	bar := klineBar{CloseTimeMs: "1700000000000", Open: "not-a-number", High: "101", Low: "99.5", Close: "100.8", Volume: "12.34"}
	_, ok := parseKlineBar(bar)
	assert.False(t, ok)
}

func TestKlineClient_Verify_NoneModeAlwaysPasses(t *testing.T) {
	k := NewKlineClient(Config{HMAC: HMACPolicy{Mode: "none"}}, nil, silentLogger())
	assert.True(t, k.verify(nil, klineStreamMessage{}))
}

func TestKlineClient_Verify_HMACModeAcceptsValidSignature(t *testing.T) {
	secret := "feed-secret"
	data := klineData{K: klineBar{CloseTimeMs: "1700000000000", Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"}}
	payload, err := json.Marshal(data)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	k := NewKlineClient(Config{HMAC: HMACPolicy{Mode: "hmac", Secret: secret}}, nil, silentLogger())
	assert.True(t, k.verify(nil, klineStreamMessage{Data: data, Sig: sig}))
}

func TestKlineClient_Verify_HMACModeRejectsTamperedSignature(t *testing.T) {
	data := klineData{K: klineBar{CloseTimeMs: "1700000000000", Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"}}
	k := NewKlineClient(Config{HMAC: HMACPolicy{Mode: "hmac", Secret: "feed-secret"}}, nil, silentLogger())
	assert.False(t, k.verify(nil, klineStreamMessage{Data: data, Sig: "deadbeef"}))
}
