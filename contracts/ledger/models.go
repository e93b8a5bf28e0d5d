// Package ledger defines the wire contract shared with the ledger gateway.
// The gateway fronts the anchoring smart contract; this module pins the JSON
// shapes so the service and the gateway cannot drift independently.
package ledger

// ContractVersion identifies the schema for ledger gateway payloads.
const ContractVersion = "v0.1.0"

// AnchorRequest submits a fingerprint for anchoring.
type AnchorRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// AnchorResponse is returned once the anchor transaction is accepted.
type AnchorResponse struct {
	TxRef string `json:"tx_ref"`
}

// TxStatusResponse reports the confirmation state of a submitted transaction.
type TxStatusResponse struct {
	TxRef     string `json:"tx_ref"`
	Confirmed bool   `json:"confirmed"`
	Failed    bool   `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

// StatusResponse is the fee-free read of a fingerprint's on-ledger state.
type StatusResponse struct {
	Exists    bool   `json:"exists"`
	Revoked   bool   `json:"revoked"`
	IssuedAt  int64  `json:"issued_at,omitempty"` // unix seconds, ledger time
	IssuerRef string `json:"issuer_ref,omitempty"`
}

// RevokeRequest marks an anchored fingerprint as revoked.
type RevokeRequest struct {
	Fingerprint string `json:"fingerprint"`
	IssuerRef   string `json:"issuer_ref"`
}

// RevokeResponse is returned when a revoke transaction is confirmed.
type RevokeResponse struct {
	TxRef string `json:"tx_ref"`
}

// ErrorResponse is the gateway's error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
