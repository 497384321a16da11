// Package didkey encodes did:key identifiers. The engine uses the EBSI
// jwk_jcs-pub variant: the multicodec-prefixed JCS-canonical public JWK,
// multibase base58btc encoded.
package didkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
)

// Prefix is the did:key method prefix including the base58btc multibase
// indicator.
const Prefix = "did:key:z"

// FromECDSAPublicKey derives the jwk_jcs-pub did:key for a P-256 key.
func FromECDSAPublicKey(pub *ecdsa.PublicKey) (string, error) {
	if pub.Curve != elliptic.P256() {
		return "", fmt.Errorf("unsupported curve %s, want P-256", pub.Curve.Params().Name)
	}

	jwk, err := canonicalJWK(pub)
	if err != nil {
		return "", err
	}

	prefixed := binary.AppendUvarint(nil, uint64(multicodec.Jwk_jcsPub))
	prefixed = append(prefixed, jwk...)

	return Prefix + base58.Encode(prefixed), nil
}

// canonicalJWK serializes the public key as a JCS-canonical JSON JWK:
// members sorted lexicographically, no whitespace.
func canonicalJWK(pub *ecdsa.PublicKey) ([]byte, error) {
	size := (pub.Curve.Params().BitSize + 7) / 8
	x := pub.X.FillBytes(make([]byte, size))
	y := pub.Y.FillBytes(make([]byte, size))

	enc := base64.RawURLEncoding
	jwk := fmt.Sprintf(`{"crv":"P-256","kty":"EC","x":"%s","y":"%s"}`,
		enc.EncodeToString(x), enc.EncodeToString(y))
	return []byte(jwk), nil
}
