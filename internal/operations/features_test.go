package operations_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"directstock/internal/catalog/catalogtest"
	"directstock/internal/commands"
	"directstock/internal/domain"
	"directstock/internal/handlers"
	"directstock/internal/idempotency"
	"directstock/internal/ledger"
	"directstock/internal/lots"
	"directstock/internal/operations"
	"directstock/internal/serials"
	apperrors "directstock/pkg/errors"
	"directstock/pkg/middleware"

	"github.com/cucumber/godog"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const operationHeader = "X-Operation-ID"

type warehouseWorld struct {
	t *testing.T

	fixture *catalogtest.Fixture
	svc     *operations.Service
	ledger  *ledger.Ledger
	journal *ledger.Journal
	lots    *lots.Registry
	serials *serials.Registry
	router  *gin.Engine

	issue    *domain.GoodsIssue
	transfer *domain.InterWarehouseTransfer
	count    *domain.InventoryCountSession
	item     *domain.InventoryCountItem
	err      error

	responses []*httptest.ResponseRecorder
}

func (w *warehouseWorld) reset() {
	f := catalogtest.New(w.t)
	logger := zap.NewNop()
	w.fixture = f
	w.ledger = ledger.New(f.DB, logger)
	w.journal = ledger.NewJournal(f.DB, logger)
	w.lots = lots.NewRegistry(f.DB, logger)
	w.serials = serials.NewRegistry(f.DB, logger)
	w.svc = operations.NewService(operations.Deps{
		DB:      f.DB,
		Catalog: f.Catalog,
		Ledger:  w.ledger,
		Journal: w.journal,
		Lots:    w.lots,
		Serials: w.serials,
		Logger:  logger,
	})
	w.router = handlers.NewRouter(handlers.RouterDeps{
		Logger:            logger,
		DB:                f.DB,
		Reservations:      idempotency.NewLog(f.DB, logger),
		IdempotencyHeader: operationHeader,
		Catalog:           f.Catalog,
		Operations:        w.svc,
		Stock:             w.ledger,
		Lots:              w.lots,
		Serials:           w.serials,
		Journal:           w.journal,
		Projection:        ledger.NewProjection(w.ledger, w.journal, logger),
	})
	w.issue, w.transfer, w.count, w.item, w.err = nil, nil, nil, nil, nil
	w.responses = nil
}

func (w *warehouseWorld) bin(code string) (*domain.Bin, error) {
	for _, b := range []*domain.Bin{w.fixture.BinA, w.fixture.BinB, w.fixture.RemoteA, w.fixture.RemoteB} {
		if b.Code == code {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown bin %q", code)
}

func (w *warehouseWorld) receive(line commands.GoodsReceiptLine) error {
	ctx := context.Background()
	r, err := w.svc.CreateGoodsReceipt(ctx, commands.CreateGoodsReceipt{Items: []commands.GoodsReceiptLine{line}})
	if err != nil {
		return err
	}
	_, err = w.svc.CompleteGoodsReceipt(ctx, r.ID, "receiver")
	return err
}

func (w *warehouseWorld) aFreshWarehouse() error {
	w.reset()
	return nil
}

func (w *warehouseWorld) batchIsReceived(batch string, qty int, expiry, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	exp, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return err
	}
	return w.receive(commands.GoodsReceiptLine{
		ProductID: w.fixture.Batch.ID, BinID: b.ID, Quantity: decimal.NewFromInt(int64(qty)),
		BatchNumber: &batch, ExpiryDate: &exp,
	})
}

func (w *warehouseWorld) undatedBatchIsReceived(batch string, qty int, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	return w.receive(commands.GoodsReceiptLine{
		ProductID: w.fixture.Batch.ID, BinID: b.ID, Quantity: decimal.NewFromInt(int64(qty)), BatchNumber: &batch,
	})
}

func (w *warehouseWorld) bulkIsReceived(qty int, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	return w.receive(commands.GoodsReceiptLine{
		ProductID: w.fixture.Bulk.ID, BinID: b.ID, Quantity: decimal.NewFromInt(int64(qty)),
	})
}

func (w *warehouseWorld) serialsAreReceived(list, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	sns := strings.Split(list, ",")
	return w.receive(commands.GoodsReceiptLine{
		ProductID: w.fixture.Serial.ID, BinID: b.ID, Quantity: decimal.NewFromInt(int64(len(sns))), SerialNumbers: sns,
	})
}

func (w *warehouseWorld) batchUnitsIssuedFefo(qty int, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	ctx := context.Background()
	w.issue, err = w.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{{
		ProductID: w.fixture.Batch.ID, BinID: b.ID, Quantity: decimal.NewFromInt(int64(qty)), UseFefo: true,
	}}})
	if err != nil {
		return err
	}
	_, w.err = w.svc.CompleteGoodsIssue(ctx, w.issue.ID, "picker")
	return nil
}

func (w *warehouseWorld) serialIsIssued(sn, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	ctx := context.Background()
	issue, err := w.svc.CreateGoodsIssue(ctx, commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{{
		ProductID: w.fixture.Serial.ID, BinID: b.ID, Quantity: decimal.NewFromInt(1), SerialNumbers: []string{sn},
	}}})
	if err != nil {
		return err
	}
	_, err = w.svc.CompleteGoodsIssue(ctx, issue.ID, "picker")
	return err
}

func (w *warehouseWorld) issuingSerialFails(sn, binCode, code string) error {
	w.err = w.serialIsIssued(sn, binCode)
	return w.failsWith(code)
}

func (w *warehouseWorld) issueCompletes() error {
	return w.err
}

func (w *warehouseWorld) failsWith(code string) error {
	if w.err == nil {
		return fmt.Errorf("expected %s, got success", code)
	}
	if got := apperrors.FromError(w.err).Code; got != code {
		return fmt.Errorf("expected %s, got %s (%v)", code, got, w.err)
	}
	return nil
}

func (w *warehouseWorld) batchHolds(batch, binCode string, qty int) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	held := decimal.Zero
	lot, err := w.lots.Get(context.Background(), w.fixture.Batch.ID, b.ID, batch)
	if err == nil {
		held = lot.Quantity
	} else if domain.KindOf(err) != domain.KindNotFound {
		return err
	}
	if !held.Equal(decimal.NewFromInt(int64(qty))) {
		return fmt.Errorf("batch %s holds %s, want %d", batch, held, qty)
	}
	return nil
}

func (w *warehouseWorld) lastMovementAllocates(list string) error {
	entries, err := w.journal.List(context.Background(), ledger.MovementFilter{
		ProductID: w.fixture.Batch.ID, MovementType: domain.MovementGoodsIssue, Limit: 1,
	})
	if err != nil {
		return err
	}
	if len(entries) != 1 {
		return fmt.Errorf("expected one goods issue movement, got %d", len(entries))
	}
	raw, err := json.Marshal(entries[0].Metadata["batch_allocations"])
	if err != nil {
		return err
	}
	var allocations []domain.BatchAllocation
	if err := json.Unmarshal(raw, &allocations); err != nil {
		return err
	}
	var got []string
	for _, a := range allocations {
		got = append(got, a.BatchNumber)
	}
	if strings.Join(got, ",") != list {
		return fmt.Errorf("allocated %v, want %s", got, list)
	}
	return nil
}

func (w *warehouseWorld) interWarehouseTransferOfSerials(list, fromCode, toCode string) error {
	from, err := w.bin(fromCode)
	if err != nil {
		return err
	}
	to, err := w.bin(toCode)
	if err != nil {
		return err
	}
	sns := strings.Split(list, ",")
	w.transfer, err = w.svc.CreateInterWarehouseTransfer(context.Background(), commands.CreateInterWarehouseTransfer{
		FromWarehouseID: from.WarehouseID,
		ToWarehouseID:   to.WarehouseID,
		Items: []commands.TransferLine{{
			ProductID: w.fixture.Serial.ID, FromBinID: from.ID, ToBinID: to.ID,
			Quantity: decimal.NewFromInt(int64(len(sns))), SerialNumbers: sns,
		}},
	})
	return err
}

func (w *warehouseWorld) transferIsDispatched() error {
	_, w.err = w.svc.DispatchInterWarehouseTransfer(context.Background(), w.transfer.ID, "shipper")
	return nil
}

func (w *warehouseWorld) transferIsReceived() error {
	_, err := w.svc.ReceiveInterWarehouseTransfer(context.Background(), commands.ReceiveInterWarehouseTransfer{
		TransferID: w.transfer.ID,
	})
	return err
}

func (w *warehouseWorld) serialIs(sn, status string) error {
	u, err := w.serials.Get(context.Background(), sn)
	if err != nil {
		return err
	}
	if string(u.Status) != status {
		return fmt.Errorf("serial %s is %s, want %s", sn, u.Status, status)
	}
	if u.Status == domain.SerialInTransit && u.CurrentBinID != nil {
		return fmt.Errorf("serial %s in transit still names bin %s", sn, *u.CurrentBinID)
	}
	return nil
}

func (w *warehouseWorld) serialIsInBin(sn, status, binCode string) error {
	if err := w.serialIs(sn, status); err != nil {
		return err
	}
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	u, err := w.serials.Get(context.Background(), sn)
	if err != nil {
		return err
	}
	if u.CurrentBinID == nil || *u.CurrentBinID != b.ID {
		return fmt.Errorf("serial %s is not in bin %s", sn, binCode)
	}
	return nil
}

func (w *warehouseWorld) countSessionGenerated(tolerance string) error {
	ctx := context.Background()
	session, err := w.svc.CreateInventoryCount(ctx, commands.CreateInventoryCount{
		WarehouseID:       &w.fixture.Main.ID,
		ToleranceQuantity: decimal.RequireFromString(tolerance),
	})
	if err != nil {
		return err
	}
	w.count, err = w.svc.GenerateInventoryCount(ctx, session.ID, "counter")
	return err
}

func (w *warehouseWorld) bulkLineCounted(binCode, qty string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	for _, item := range w.count.Items {
		if item.ProductID == w.fixture.Bulk.ID && item.BinID == b.ID {
			w.item, err = w.svc.RecordCount(context.Background(), commands.RecordCount{
				SessionID: w.count.ID, ItemID: item.ID, CountedQuantity: decimal.RequireFromString(qty),
			})
			return err
		}
	}
	return fmt.Errorf("no count item for bin %s", binCode)
}

func (w *warehouseWorld) recountRequired() error {
	if !w.item.RecountRequired {
		return fmt.Errorf("expected a recount")
	}
	return nil
}

func (w *warehouseWorld) noRecountRequired() error {
	if w.item.RecountRequired {
		return fmt.Errorf("unexpected recount, difference %s", w.item.Difference.Decimal)
	}
	return nil
}

func (w *warehouseWorld) countSessionCompleted() error {
	_, err := w.svc.CompleteInventoryCount(context.Background(), w.count.ID, "counter")
	return err
}

func (w *warehouseWorld) completingCountFails(code string) error {
	_, w.err = w.svc.CompleteInventoryCount(context.Background(), w.count.ID, "counter")
	return w.failsWith(code)
}

func (w *warehouseWorld) binHoldsBulk(binCode, qty string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	line, err := w.ledger.Find(context.Background(), w.fixture.Bulk.ID, b.ID)
	if err != nil {
		return err
	}
	if !line.Quantity.Equal(decimal.RequireFromString(qty)) {
		return fmt.Errorf("bin %s holds %s, want %s", binCode, line.Quantity, qty)
	}
	return nil
}

func (w *warehouseWorld) draftBulkIssue(qty int, binCode string) error {
	b, err := w.bin(binCode)
	if err != nil {
		return err
	}
	w.issue, err = w.svc.CreateGoodsIssue(context.Background(), commands.CreateGoodsIssue{Items: []commands.GoodsIssueLine{{
		ProductID: w.fixture.Bulk.ID, BinID: b.ID, Quantity: decimal.NewFromInt(int64(qty)),
	}}})
	return err
}

func (w *warehouseWorld) issueCompletedOverHTTP(operationID string) error {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/goods-issues/"+w.issue.ID+"/complete", nil)
	req.Header.Set(operationHeader, operationID)
	rec := httptest.NewRecorder()
	w.router.ServeHTTP(rec, req)
	w.responses = append(w.responses, rec)
	return nil
}

func (w *warehouseWorld) bothResponsesIdentical(status int) error {
	if len(w.responses) != 2 {
		return fmt.Errorf("expected two responses, got %d", len(w.responses))
	}
	first, second := w.responses[0], w.responses[1]
	if first.Code != status || second.Code != status {
		return fmt.Errorf("statuses %d and %d, want %d", first.Code, second.Code, status)
	}
	if first.Body.String() != second.Body.String() {
		return fmt.Errorf("bodies differ:\n%s\n%s", first.Body, second.Body)
	}
	return nil
}

func (w *warehouseWorld) secondResponseIsReplay() error {
	if got := w.responses[1].Header().Get(middleware.ReplayHeader); got != "true" {
		return fmt.Errorf("replay header is %q", got)
	}
	return nil
}

func (w *warehouseWorld) responseStatusIs(status int) error {
	last := w.responses[len(w.responses)-1]
	if last.Code != status {
		return fmt.Errorf("status %d, want %d: %s", last.Code, status, last.Body)
	}
	return nil
}

func initializeScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(sc *godog.ScenarioContext) {
		w := &warehouseWorld{t: t}

		sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
			w.reset()
			return ctx, nil
		})

		// Given
		sc.Step(`^a fresh warehouse$`, w.aFreshWarehouse)
		sc.Step(`^batch "([^"]*)" of (\d+) expiring "([^"]*)" is received into bin "([^"]*)"$`, w.batchIsReceived)
		sc.Step(`^batch "([^"]*)" of (\d+) without expiry is received into bin "([^"]*)"$`, w.undatedBatchIsReceived)
		sc.Step(`^(\d+) (?:more )?bulk units are received into bin "([^"]*)"$`, w.bulkIsReceived)
		sc.Step(`^serials "([^"]*)" are received into bin "([^"]*)"$`, w.serialsAreReceived)
		sc.Step(`^serial "([^"]*)" is issued from bin "([^"]*)"$`, w.serialIsIssued)
		sc.Step(`^an inter-warehouse transfer of serials "([^"]*)" from bin "([^"]*)" to bin "([^"]*)"$`, w.interWarehouseTransferOfSerials)
		sc.Step(`^a count session with tolerance "([^"]*)" is generated$`, w.countSessionGenerated)
		sc.Step(`^a draft issue of (\d+) bulk units from bin "([^"]*)"$`, w.draftBulkIssue)

		// When
		sc.Step(`^(\d+) batch units are issued from bin "([^"]*)" using FEFO$`, w.batchUnitsIssuedFefo)
		sc.Step(`^the transfer is dispatched$`, w.transferIsDispatched)
		sc.Step(`^the transfer is received$`, w.transferIsReceived)
		sc.Step(`^the bulk line in bin "([^"]*)" is counted as "([^"]*)"$`, w.bulkLineCounted)
		sc.Step(`^the count session is completed$`, w.countSessionCompleted)
		sc.Step(`^the issue is completed over HTTP with operation id "([^"]*)"$`, w.issueCompletedOverHTTP)

		// Then
		sc.Step(`^the issue completes$`, w.issueCompletes)
		sc.Step(`^the (?:issue|operation) fails with "([^"]*)"$`, w.failsWith)
		sc.Step(`^batch "([^"]*)" in bin "([^"]*)" holds (\d+)$`, w.batchHolds)
		sc.Step(`^the last movement allocates "([^"]*)"$`, w.lastMovementAllocates)
		sc.Step(`^serial "([^"]*)" is "([^"]*)"$`, w.serialIs)
		sc.Step(`^serial "([^"]*)" is "([^"]*)" in bin "([^"]*)"$`, w.serialIsInBin)
		sc.Step(`^a recount is required$`, w.recountRequired)
		sc.Step(`^no recount is required$`, w.noRecountRequired)
		sc.Step(`^issuing serial "([^"]*)" from bin "([^"]*)" fails with "([^"]*)"$`, w.issuingSerialFails)
		sc.Step(`^completing the count session fails with "([^"]*)"$`, w.completingCountFails)
		sc.Step(`^bin "([^"]*)" holds "([^"]*)" bulk units$`, w.binHoldsBulk)
		sc.Step(`^both responses are identical with status (\d+)$`, w.bothResponsesIdentical)
		sc.Step(`^the second response is marked as a replay$`, w.secondResponseIsReplay)
		sc.Step(`^the response status is (\d+)$`, w.responseStatusIs)
	}
}

func TestFeatures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
