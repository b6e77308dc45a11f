package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignKnownVector(t *testing.T) {
	// echo -n "order_123|pay_456" | openssl dgst -sha256 -hmac secret
	sig := Sign("secret", "order_123", "pay_456")
	assert.Equal(t, "18bfc0baafae8f6367711ee362f2201aaa3654274683100e5367bb9a2bd29cbe", sig)
	assert.NotEqual(t, sig, Sign("secret", "order_123", "pay_457"))
	assert.NotEqual(t, sig, Sign("other", "order_123", "pay_456"))
}

func TestVerifySignature(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")
	assert.True(t, VerifySignature("secret", "order_1", "pay_1", sig))
	assert.False(t, VerifySignature("secret", "order_1", "pay_2", sig))
	assert.False(t, VerifySignature("secret", "order_1", "pay_1", ""))
	assert.False(t, VerifySignature("", "order_1", "pay_1", Sign("", "order_1", "pay_1")))
}

func TestVerifySignatureEveryBitFlip(t *testing.T) {
	sig := []byte(Sign("secret", "order_9", "pay_9"))
	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			tampered := make([]byte, len(sig))
			copy(tampered, sig)
			tampered[i] ^= 1 << bit
			assert.False(t, VerifySignature("secret", "order_9", "pay_9", string(tampered)), "byte %d bit %d", i, bit)
		}
	}
}
