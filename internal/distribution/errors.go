package distribution

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"assetdistributor/internal/asset"
	"assetdistributor/internal/auth"
)

var (
	ErrUnsupportedAssetKind = asset.ErrUnsupportedKind
	ErrUnsupportedByAdapter = errors.New("asset not supported by adapter")
	ErrAssetUnknown         = errors.New("asset unknown to vendor")
	ErrAssetKnown           = errors.New("asset already published to vendor")

	ErrAuthenticationRequired = auth.ErrRequired
	ErrAuthenticationDenied   = auth.ErrDenied
	ErrAuthenticationFailed   = auth.ErrFailed
	ErrStateMismatch          = auth.ErrStateMismatch

	ErrVendorOperationFailed = errors.New("vendor operation failed")
)

// VendorError is a non-2xx answer from a vendor API.
type VendorError struct {
	Vendor  Vendor
	Op      string
	Status  int
	Message string
}

func (e *VendorError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s failed: %s", e.Vendor, e.Op, e.Message)
	}
	return fmt.Sprintf("%s %s failed (%d): %s", e.Vendor, e.Op, e.Status, e.Message)
}

func (e *VendorError) Unwrap() error {
	return ErrVendorOperationFailed
}

// CheckResponse returns nil for a 2xx response and a *VendorError carrying
// the vendor's message otherwise. The body is consumed on error.
func CheckResponse(v Vendor, op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &VendorError{
		Vendor:  v,
		Op:      op,
		Status:  resp.StatusCode,
		Message: vendorMessage(body, resp.Status),
	}
}

func vendorMessage(body []byte, fallback string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"developer_message", "error_description", "message", "error"} {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]any:
				if msg, ok := v["message"].(string); ok && msg != "" {
					return msg
				}
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return text
	}
	return fallback
}

// Unsupported reports that ad does not accept a's kind.
func Unsupported(v Vendor, a *asset.Asset) error {
	return fmt.Errorf("%s: %w: %s", v.DisplayName(), ErrUnsupportedByAdapter, a.Kind())
}
