package domain

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"
)

const (
	maxSignatureBytes     = 512 << 10
	signatureDataURLStart = "data:image/png;base64,"
)

type SignatureSource string

const (
	SourceClientPortal SignatureSource = "client_portal"
	SourceAgentApplied SignatureSource = "agent_applied"
)

type SignatureMetadata struct {
	Source           SignatureSource `json:"source"`
	IPAddress        string          `json:"ip_address,omitempty"`
	UserAgent        string          `json:"user_agent,omitempty"`
	ConsentReference string          `json:"consent_reference,omitempty"`
}

// Signature is a signing event bound to a case. Only IsValid and
// InvalidatedAt change after creation.
type Signature struct {
	ID            string            `json:"id"`
	CaseID        string            `json:"case_id"`
	Data          []byte            `json:"-"`
	SignerID      string            `json:"signer_id"`
	SignedAt      time.Time         `json:"signed_at"`
	IsValid       bool              `json:"is_valid"`
	InvalidatedAt *time.Time        `json:"invalidated_at,omitempty"`
	Metadata      SignatureMetadata `json:"metadata"`
}

// DecodeSignatureImage accepts a PNG data URL or bare base64 payload as
// produced by signature pads and returns the PNG bytes.
func DecodeSignatureImage(encoded string) ([]byte, error) {
	payload := strings.TrimSpace(encoded)
	if payload == "" {
		return nil, WrapError(ErrInvalidInput, "decode signature", fmt.Errorf("signature data is empty"))
	}
	if strings.HasPrefix(payload, "data:") {
		if !strings.HasPrefix(payload, signatureDataURLStart) {
			return nil, WrapError(ErrInvalidInput, "decode signature", fmt.Errorf("signature must be a base64 png data url"))
		}
		payload = strings.TrimPrefix(payload, signatureDataURLStart)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, WrapError(ErrInvalidInput, "decode signature", err)
	}
	if err := ValidateSignatureImage(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func ValidateSignatureImage(raw []byte) error {
	if len(raw) == 0 {
		return WrapError(ErrInvalidInput, "validate signature", fmt.Errorf("signature image is empty"))
	}
	if len(raw) > maxSignatureBytes {
		return WrapError(ErrInvalidInput, "validate signature", fmt.Errorf("signature image exceeds %d bytes", maxSignatureBytes))
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return WrapError(ErrInvalidInput, "validate signature", fmt.Errorf("signature is not a png image: %w", err))
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return WrapError(ErrInvalidInput, "validate signature", fmt.Errorf("signature image has no area"))
	}
	return nil
}
