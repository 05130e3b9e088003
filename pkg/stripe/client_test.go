package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestNewClient_ValidatesKeysPerEnvironment(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec_1", client.SigningSecret())

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "live"}, nil)
	assert.ErrorContains(t, err, "live secret key")

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "rk_live_1", Secret: "whsec_1", Env: "LIVE"}, nil)
	assert.NoError(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1", Env: "staging"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)

	_, err = NewClient(ctx, config.StripeConfig{Secret: "whsec_1"}, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1"}, nil)
	assert.ErrorIs(t, err, errSecretRequired)
}

func TestClient_VerifyEvent(t *testing.T) {
	client := &Client{environment: testEnv, signingSecret: "whsec_test"}
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"` + stripe.APIVersion + `","data":{"object":{}}}`)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	event, err := client.VerifyEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = client.VerifyEvent(payload, "t=1,v1=deadbeef")
	assert.Error(t, err)
}

func TestClient_CreatePaymentIntentRequiresParams(t *testing.T) {
	_, err := (&Client{}).CreatePaymentIntent(context.Background(), nil)
	assert.Error(t, err)
}
