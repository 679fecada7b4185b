package strongbox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureVersion = "2"
	SignatureMethod  = "HmacSHA256"

	ParamAccessKeyID      = "access_key_id"
	ParamExpires          = "expires"
	ParamSignatureVersion = "signature_version"
	ParamSignatureMethod  = "signature_method"
	ParamSignature        = "signature"
)

// KeyPair is the access key id and secret used to mint capabilities.
type KeyPair struct {
	AccessKey string `json:"access_key" yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`
}

// SecretStore resolves an access key id to its secret.
type SecretStore interface {
	Lookup(accessKey string) (secretKey string, err error)
}

// Signer mints and verifies capability URLs. It holds no per-token state:
// verification recomputes the signature from the request.
type Signer struct {
	minting KeyPair
	secrets SecretStore
	now     func() time.Time
}

type SignerOption func(*Signer)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a signer that mints with the given key pair and verifies
// against any key known to secrets.
func NewSigner(minting KeyPair, secrets SecretStore, opts ...SignerOption) (*Signer, error) {
	if minting.AccessKey == "" || minting.SecretKey == "" {
		return nil, fmt.Errorf("new signer: %w: minting key pair is incomplete", ErrInvalidInput)
	}
	if secrets == nil {
		return nil, fmt.Errorf("new signer: %w: secret store is required", ErrInvalidInput)
	}

	s := &Signer{
		minting: minting,
		secrets: secrets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign computes the HMAC-SHA256 digest of the canonical string
//
//	METHOD\nCANONICAL_PATH\nEXPIRES\n
//
// followed by one "key:value\n" line per header, sorted by key.
// Identical inputs always produce identical digests.
func Sign(secretKey, method, canonicalPath string, expires int64, headers map[string]string) []byte {
	return hmacSHA256([]byte(secretKey), []byte(canonicalString(method, canonicalPath, expires, headers)))
}

func canonicalString(method, canonicalPath string, expires int64, headers map[string]string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(canonicalPath)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(expires, 10))
	b.WriteByte('\n')

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(headers[k])
		b.WriteByte('\n')
	}

	return b.String()
}

// Mint returns baseURL with capability parameters granting method until
// now + expiryMinutes. The signature covers baseURL exactly as given.
func (s *Signer) Mint(baseURL, method string, expiryMinutes int) (string, error) {
	if expiryMinutes <= 0 {
		return "", fmt.Errorf("mint capability: %w: expiry must be positive", ErrInvalidInput)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("mint capability: %w: %w", ErrInvalidInput, err)
	}
	if u.RawQuery != "" {
		return "", fmt.Errorf("mint capability: %w: base url must not carry a query", ErrInvalidInput)
	}

	expires := s.now().Unix() + int64(expiryMinutes)*60
	signature := Sign(s.minting.SecretKey, method, baseURL, expires, nil)

	params := url.Values{}
	params.Set(ParamAccessKeyID, s.minting.AccessKey)
	params.Set(ParamExpires, strconv.FormatInt(expires, 10))
	params.Set(ParamSignatureVersion, SignatureVersion)
	params.Set(ParamSignatureMethod, SignatureMethod)
	params.Set(ParamSignature, base64.StdEncoding.EncodeToString(signature))

	return baseURL + "?" + params.Encode(), nil
}

type capabilityParams struct {
	accessKey string
	expires   int64
	version   string
	method    string
	signature string
}

// Verify checks the capability carried in query against the server's own
// canonical URL for the resource. It never looks at stored metadata.
//
// Returns nil when authorized, otherwise one of ErrCapabilityMalformed,
// ErrCapabilityInvalid or ErrCapabilityExpired.
func (s *Signer) Verify(method, canonicalURL string, query url.Values) error {
	params, err := extractCapabilityParams(query)
	if err != nil {
		return err
	}

	secretKey, err := s.secrets.Lookup(params.accessKey)
	if err != nil {
		return fmt.Errorf("unknown access key: %w", ErrCapabilityInvalid)
	}

	if params.version != SignatureVersion || params.method != SignatureMethod {
		return fmt.Errorf("unsupported signature scheme: %w", ErrCapabilityInvalid)
	}

	if params.expires < s.now().Unix() {
		return ErrCapabilityExpired
	}

	supplied, err := base64.StdEncoding.DecodeString(params.signature)
	if err != nil {
		return fmt.Errorf("undecodable signature: %w", ErrCapabilityInvalid)
	}

	expected := Sign(secretKey, method, canonicalURL, params.expires, nil)
	if !hmac.Equal(expected, supplied) {
		return fmt.Errorf("signature mismatch: %w", ErrCapabilityInvalid)
	}

	return nil
}

func extractCapabilityParams(query url.Values) (*capabilityParams, error) {
	accessKey := query.Get(ParamAccessKeyID)
	expiresStr := query.Get(ParamExpires)
	version := query.Get(ParamSignatureVersion)
	method := query.Get(ParamSignatureMethod)
	signature := query.Get(ParamSignature)

	if accessKey == "" || expiresStr == "" || version == "" || method == "" || signature == "" {
		return nil, fmt.Errorf("missing required capability parameters: %w", ErrCapabilityMalformed)
	}

	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires: %w", ErrCapabilityMalformed)
	}

	return &capabilityParams{
		accessKey: accessKey,
		expires:   expires,
		version:   version,
		method:    method,
		signature: signature,
	}, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
