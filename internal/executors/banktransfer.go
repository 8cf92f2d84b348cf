package executors

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// BankTransferExecutor settles withdrawals over a bank-transfer aggregator
// that speaks ISO 20022. Each request is rendered as a pacs.008 customer
// credit transfer; the transaction record id rides as the end-to-end id, which
// the settlement rail deduplicates on.
type BankTransferExecutor struct {
	settlementURL string
	debtorBIC     string
	client        *http.Client
}

func NewBankTransferExecutor(settlementURL, debtorBIC string, timeout time.Duration) *BankTransferExecutor {
	if debtorBIC == "" {
		debtorBIC = "VAULTPAY"
	}
	return &BankTransferExecutor{
		settlementURL: settlementURL,
		debtorBIC:     debtorBIC,
		client:        defaultClient(timeout),
	}
}

func (e *BankTransferExecutor) Name() string { return "banktransfer" }
func (e *BankTransferExecutor) Live() bool   { return true }

func (e *BankTransferExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	doc, err := e.buildPacs008(req)
	if err != nil {
		return nil, err
	}

	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pacs.008: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.settlementURL, bytes.NewReader([]byte(xml.Header+string(xmlData))))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/xml")
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("settlement rail returned status %d", resp.StatusCode)
	}

	var ack struct {
		SettlementRef string `json:"settlementRef"`
		Status        string `json:"status"` // ACCP, ACSC, RJCT
		Reason        string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, err
	}

	if ack.Status == "RJCT" {
		return &Result{ExternalReference: ack.SettlementRef, FailureReason: ack.Reason}, nil
	}
	return &Result{ExternalReference: ack.SettlementRef, Succeeded: true}, nil
}

// buildPacs008 creates the FIToFICustomerCreditTransfer message for one
// withdrawal.
func (e *BankTransferExecutor) buildPacs008(req Request) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	now := time.Now()
	amount := float64(req.Amount) / 100

	bankCode, _ := req.Destination["bankCode"].(string)
	accountName, _ := req.Destination["accountName"].(string)
	if bankCode == "" {
		return nil, fmt.Errorf("bank transfer requires a destination bankCode")
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(req.Reference),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(req.Currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&now),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(req.Reference)}[0],
					EndToEndId: common.Max35Text(req.Reference),
					TxId:       &[]common.Max35Text{common.Max35Text(req.Reference)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(req.Currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&now),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(e.debtorBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(req.AccountID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(bankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountName)}[0],
				},
			},
		},
	}

	return doc, nil
}
