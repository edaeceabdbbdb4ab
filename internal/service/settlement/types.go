package settlement

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// The settlement service reads amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// StatusSigned is the only leg status the gateway reports.
const StatusSigned = "SIGNED"

// InitiateRequest asks the settlement service to prepare signing payloads.
type InitiateRequest struct {
	UserName           string          `json:"userName"`
	SenderAddress      string          `json:"senderAddress,omitempty"`
	DestinationAddress string          `json:"destinationAddress"`
	Amount             decimal.Decimal `json:"amount"`
	Batch              bool            `json:"batch"`
	ReturnURL          string          `json:"returnUrl,omitempty"`
}

// InitiateResponse carries one signing payload per leg. Fee fields are empty
// for single-leg flows.
type InitiateResponse struct {
	RequestID       string `json:"requestId"`
	Status          string `json:"status"`
	UserUUID        string `json:"userUuid"`
	UserRedirectURL string `json:"userRedirectUrl"`
	FeeUUID         string `json:"feeUuid,omitempty"`
	FeeRedirectURL  string `json:"feeRedirectUrl,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Paired reports whether the response contains a fee leg.
func (r InitiateResponse) Paired() bool {
	return r.FeeUUID != ""
}

// Report announces that every leg of a payment is signed.
type Report struct {
	UserID string
	// FeeID is empty for single-leg flows.
	FeeID          string
	IdempotencyKey string
}

// IDs lists the correlation ids in the order the batch endpoint expects.
func (r Report) IDs() []string {
	if r.FeeID == "" {
		return []string{r.UserID}
	}
	return []string{r.UserID, r.FeeID}
}

// Disposition is the settlement service's final answer.
type Disposition struct {
	Status   string `json:"status"`
	FeeTxID  string `json:"feeTxId,omitempty"`
	UserTxID string `json:"userTxId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Completed reports whether the payment settled.
func (d Disposition) Completed() bool {
	return strings.EqualFold(strings.TrimSpace(d.Status), "COMPLETED")
}

// TransactionIDs returns the non-empty ledger transaction ids.
func (d Disposition) TransactionIDs() []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{d.FeeTxID, d.UserTxID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type singleCallback struct {
	PaymentUUID string `json:"paymentUuid"`
	Status      string `json:"status"`
}

type batchCallback struct {
	PaymentUUIDs []string `json:"paymentUuids"`
	Status       string   `json:"status"`
}
