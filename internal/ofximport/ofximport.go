// Package ofximport books the transactions of an OFX/QFX bank statement
// into the ledger: outflows become expenses, inflows become incomes.
package ofximport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ledger"
)

// Importer drives statement transactions through the ledger's transaction
// managers so every imported row gets the full consistency treatment.
type Importer struct {
	svc *ledger.Service
}

func NewImporter(svc *ledger.Service) *Importer {
	return &Importer{svc: svc}
}

// Report summarizes one import run.
type Report struct {
	Expenses int
	Incomes  int
	Skipped  int
}

// CanImport checks extension and header markers, both OFX v1 SGML and v2
// XML forms.
func CanImport(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}
	h := strings.ToUpper(string(header))
	return strings.Contains(h, "OFXHEADER") ||
		strings.Contains(h, "<?OFX") ||
		strings.Contains(h, "<OFX>")
}

// Import parses the statement and books every transaction for the user.
// Transactions with a zero amount are counted as skipped.
func (imp *Importer) Import(ctx context.Context, userID string, r io.Reader) (*Report, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}
	resp, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file (%d bytes): %w", len(content), err)
	}

	tranList, err := transactionList(resp)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for i, txn := range tranList.Transactions {
		if err := imp.book(ctx, userID, txn, report); err != nil {
			return report, fmt.Errorf("failed to book transaction at index %d: %w", i, err)
		}
	}
	return report, nil
}

func (imp *Importer) book(ctx context.Context, userID string, txn ofxgo.Transaction, report *Report) error {
	amount, _ := txn.TrnAmt.Float64()
	if amount == 0 {
		report.Skipped++
		return nil
	}

	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}
	if description == "" {
		description = "Imported transaction"
	}

	if amount < 0 {
		_, err := imp.svc.Expenses.Create(ctx, userID, &domain.Expense{
			Description:   description,
			Amount:        domain.Round2(-amount),
			OccurredAt:    date,
			PaymentMethod: paymentMethod(txn),
			Notes:         strings.TrimSpace(txn.Memo.String()),
		})
		if err != nil {
			return err
		}
		report.Expenses++
		return nil
	}

	_, _, err := imp.svc.Incomes.Register(ctx, userID, &domain.Income{
		Kind:        incomeKind(txn),
		Amount:      domain.Round2(amount),
		OccurredAt:  date,
		Description: description,
	})
	if err != nil {
		return err
	}
	report.Incomes++
	return nil
}

// transactionList returns the first statement's transactions, trying credit
// card then bank responses. Investment statements are not supported.
func transactionList(resp *ofxgo.Response) (*ofxgo.TransactionList, error) {
	if len(resp.CreditCard) > 0 {
		stmt, ok := resp.CreditCard[0].(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert credit card statement: expected *ofxgo.CCStatementResponse, got %T", resp.CreditCard[0])
		}
		if stmt.BankTranList == nil {
			return nil, fmt.Errorf("missing transaction list in credit card statement")
		}
		return stmt.BankTranList, nil
	}
	if len(resp.Bank) > 0 {
		stmt, ok := resp.Bank[0].(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert bank statement: expected *ofxgo.StatementResponse, got %T", resp.Bank[0])
		}
		if stmt.BankTranList == nil {
			return nil, fmt.Errorf("missing transaction list in bank statement")
		}
		return stmt.BankTranList, nil
	}
	return nil, fmt.Errorf("no supported statement type found in OFX file (creditcard: %d, bank: %d)",
		len(resp.CreditCard), len(resp.Bank))
}

func paymentMethod(txn ofxgo.Transaction) string {
	switch txn.TrnType {
	case ofxgo.TrnTypeATM:
		return "atm"
	case ofxgo.TrnTypeCheck:
		return "check"
	case ofxgo.TrnTypePOS:
		return "card"
	case ofxgo.TrnTypeXfer:
		return "transfer"
	default:
		return ""
	}
}

func incomeKind(txn ofxgo.Transaction) string {
	switch txn.TrnType {
	case ofxgo.TrnTypeInt:
		return "interest"
	case ofxgo.TrnTypeDep:
		return "deposit"
	case ofxgo.TrnTypeXfer:
		return "transfer"
	default:
		return "other"
	}
}
