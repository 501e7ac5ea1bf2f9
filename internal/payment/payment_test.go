package payment

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/authz"
	"shopcore/internal/counter"
	"shopcore/internal/domain"
	"shopcore/internal/gateway"
	"shopcore/internal/store"
)

type noopPersister struct{}

func (noopPersister) SaveCollectionData(string, store.DocStore) error { return nil }
func (noopPersister) DeleteCollectionFile(string) error               { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}

type fakeEncoder struct {
	fail bool
	last QRRequest
}

func (f *fakeEncoder) Encode(req QRRequest) (string, error) {
	if f.fail {
		return "", assert.AnError
	}
	f.last = req
	return fmt.Sprintf("QR|%s|%s|%.2f%s", req.Merchant, req.BillNumber, req.Amount, req.Currency), nil
}

func newTestService(t *testing.T) (*Service, *fakeEncoder) {
	t.Helper()
	manager := store.NewManager(noopPersister{}, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := gateway.New(manager, authz.NewResolver(), noopPublisher{}, logger)
	counters := counter.NewService(manager, logger)
	encoder := &fakeEncoder{}
	return NewService(gw, counters, encoder, "Shop Demo", logger), encoder
}

func payer() domain.Principal {
	return domain.Principal{
		ID:          "alice",
		Role:        domain.RoleCustomer,
		Permissions: domain.NewPermissionSet(domain.RegisteredCustomerGrants),
	}
}

func TestGenerateQR(t *testing.T) {
	svc, encoder := newTestService(t)

	tx, err := svc.GenerateQR(payer(), GenerateInput{
		OrderID:  "o1",
		BranchID: "b1",
		Amount:   12.5,
		Currency: "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, "000001", tx["billNumber"])
	assert.Equal(t, StatusPending, tx["paymentStatus"])
	assert.Equal(t, "alice", tx[domain.FieldUserID])
	assert.Equal(t, encoder.last.BillNumber, tx["billNumber"])
	assert.Contains(t, tx["qrString"], "Shop Demo")

	expiry, err := time.Parse(time.RFC3339Nano, tx["qrExpiresAt"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(QRWindow), expiry, 10*time.Second)

	// Bill numbers advance per transaction.
	tx2, err := svc.GenerateQR(payer(), GenerateInput{OrderID: "o2", BranchID: "b1", Amount: 1, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "000002", tx2["billNumber"])
}

func TestMarkPaidAndConfirm(t *testing.T) {
	svc, _ := newTestService(t)

	tx, err := svc.GenerateQR(payer(), GenerateInput{OrderID: "o1", BranchID: "b1", Amount: 3, Currency: "KHR"})
	require.NoError(t, err)
	id := tx[domain.FieldID].(string)
	bill := tx["billNumber"].(string)

	// Confirming before payment fails.
	_, err = svc.Confirm(system, id)
	assert.ErrorIs(t, err, ErrNotPaid)

	paid, err := svc.MarkPaid(bill, "REF-123")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid["paymentStatus"])
	assert.Equal(t, "REF-123", paid["providerRefId"])
	assert.NotEmpty(t, paid["paidAt"])

	status, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, status)

	confirmed, err := svc.Confirm(system, id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed["paymentStatus"])
}

func TestMarkPaidUnknownBill(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.MarkPaid("999999", "REF")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestStatusExpiresPendingQR(t *testing.T) {
	svc, _ := newTestService(t)

	tx, err := svc.GenerateQR(payer(), GenerateInput{OrderID: "o1", BranchID: "b1", Amount: 3, Currency: "USD"})
	require.NoError(t, err)
	id := tx[domain.FieldID].(string)

	svc.now = func() time.Time { return time.Now().UTC().Add(QRWindow + time.Minute) }
	status, err := svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status)
}

func TestRecordScanOnce(t *testing.T) {
	svc, _ := newTestService(t)

	tx, err := svc.GenerateQR(payer(), GenerateInput{OrderID: "o1", BranchID: "b1", Amount: 3, Currency: "USD"})
	require.NoError(t, err)
	id := tx[domain.FieldID].(string)

	require.NoError(t, svc.RecordScan(id))
	first, err := svc.load(id)
	require.NoError(t, err)
	stamp := first["scannedAt"]
	require.NotEmpty(t, stamp)

	require.NoError(t, svc.RecordScan(id))
	second, err := svc.load(id)
	require.NoError(t, err)
	assert.Equal(t, stamp, second["scannedAt"])
}

func TestEncoderFailureDoesNotCreateTransaction(t *testing.T) {
	svc, encoder := newTestService(t)
	encoder.fail = true

	_, err := svc.GenerateQR(payer(), GenerateInput{OrderID: "o1", BranchID: "b1", Amount: 3, Currency: "USD"})
	require.Error(t, err)

	docs, err := svc.gateway.List(system, domain.ColTransaction, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestGenerateQRValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GenerateQR(payer(), GenerateInput{OrderID: "o1", BranchID: "b1", Amount: 0, Currency: "USD"})
	assert.ErrorIs(t, err, gateway.ErrValidation)

	_, err = svc.GenerateQR(payer(), GenerateInput{OrderID: "o1", BranchID: "b1", Amount: 5, Currency: "EUR"})
	assert.ErrorIs(t, err, gateway.ErrValidation)

	docs, err := svc.gateway.List(payer(), domain.ColTransaction, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
