package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/lotfolio/src/logger"
	"github.com/username/lotfolio/src/models"
	"github.com/username/lotfolio/src/processors"
	"github.com/username/lotfolio/src/storage"
)

const (
	ckEnrichedSnapshot = "res_enriched_snapshot_%s_%s"
	ckCorporateActions = "res_corporate_actions_%s"
)

type reconcileServiceImpl struct {
	transactionStore storage.TransactionStore
	lotStore         storage.LotStore
	securityStore    storage.SecurityMetadataStore
	adjustmentStore  storage.AdjustmentStore
	defaultMethod    models.AccountingMethod
	reportCache      *cache.Cache

	// securityLocks serializes writers per security so two in-flight sales
	// against the same lot set cannot interleave.
	mu            sync.Mutex
	securityLocks map[string]*sync.Mutex
}

func NewReconcileService(
	transactionStore storage.TransactionStore,
	lotStore storage.LotStore,
	securityStore storage.SecurityMetadataStore,
	adjustmentStore storage.AdjustmentStore,
	defaultMethod models.AccountingMethod,
	reportCache *cache.Cache,
) ReconcileService {
	return &reconcileServiceImpl{
		transactionStore: transactionStore,
		lotStore:         lotStore,
		securityStore:    securityStore,
		adjustmentStore:  adjustmentStore,
		defaultMethod:    defaultMethod,
		reportCache:      reportCache,
		securityLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *reconcileServiceImpl) lockSecurity(securityID string) func() {
	s.mu.Lock()
	lock, ok := s.securityLocks[securityID]
	if !ok {
		lock = &sync.Mutex{}
		s.securityLocks[securityID] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// ImportTransactions normalizes, categorizes, and persists a batch of
// already-parsed transactions. Each row gets a content hash so replaying
// the same export file inserts nothing new.
func (s *reconcileServiceImpl) ImportTransactions(account string, txs []models.Transaction) (int, error) {
	if account == "" {
		return 0, &models.ValidationError{Field: "account", Reason: "missing account"}
	}

	prepared := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		tx.Account = account
		tx.Symbol = models.NormalizeSymbol(tx.Symbol)
		if tx.Category == models.CategoryOther {
			tx.Category = models.CategorizeAction(tx.Action)
		}
		if err := tx.Validate(); err != nil {
			return 0, fmt.Errorf("validating transaction for %s: %w", tx.Symbol, err)
		}
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		tx.HashID = transactionHash(tx)
		prepared = append(prepared, tx)
	}

	inserted, err := s.transactionStore.SaveAll(prepared)
	if err != nil {
		return 0, fmt.Errorf("importing transactions for account %s: %w", account, err)
	}
	s.invalidateAccountCache(account)
	logger.L.Info("Imported transactions", "account", account, "received", len(txs), "inserted", inserted)
	return inserted, nil
}

// transactionHash fingerprints a transaction by its content so identical
// rows from a replayed upload collide on the UNIQUE(account, hash_id)
// constraint instead of duplicating.
func transactionHash(tx models.Transaction) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%f|%f|%f",
		tx.Account, tx.Symbol, tx.Date.UTC().Format(time.RFC3339), tx.Action,
		tx.Quantity, tx.Price, tx.Amount)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ProcessTransactions rebuilds the lot ledger from an account's transaction
// history: an acquisition pass creating one lot per buy, then a disposition
// pass replaying sells in account-wide date order. Per-symbol failures are
// collected and do not stop the run.
func (s *reconcileServiceImpl) ProcessTransactions(account string) (*ReconcileResult, error) {
	txs, err := s.transactionStore.GetByAccount(account)
	if err != nil {
		return nil, fmt.Errorf("loading transactions for account %s: %w", account, err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("account %s: %w", account, ErrNoTransactions)
	}

	result := &ReconcileResult{Errors: []SymbolError{}}
	startTime := time.Now()
	logger.L.Info("Reconciliation START", "account", account, "transactions", len(txs))

	bySymbol := make(map[string][]models.Transaction)
	for _, tx := range txs {
		symbol := models.NormalizeSymbol(tx.Symbol)
		if symbol == "" {
			continue
		}
		bySymbol[symbol] = append(bySymbol[symbol], tx)
	}

	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		if err := s.runAcquisitionPass(account, symbol, bySymbol[symbol], result); err != nil {
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
		}
	}

	s.runDispositionPass(account, txs, result)

	s.invalidateAccountCache(account)
	logger.L.Info("Reconciliation END", "account", account,
		"lotsCreated", result.LotsCreated, "salesApplied", result.SalesApplied,
		"salesSkipped", result.SalesSkipped,
		"errors", len(result.Errors), "duration", time.Since(startTime))
	return result, nil
}

// runAcquisitionPass creates one lot per acquisition transaction of a
// symbol, skipping transactions that already spawned a lot in a previous
// run, and records the earliest acquisition date in the security metadata.
func (s *reconcileServiceImpl) runAcquisitionPass(account, symbol string, symbolTxs []models.Transaction, result *ReconcileResult) error {
	acquisitions := make([]models.Transaction, 0, len(symbolTxs))
	for _, tx := range symbolTxs {
		if tx.Category == models.CategoryAcquisition {
			acquisitions = append(acquisitions, tx)
		}
	}
	if len(acquisitions) == 0 {
		return nil
	}
	sort.Slice(acquisitions, func(i, j int) bool {
		if !acquisitions[i].Date.Equal(acquisitions[j].Date) {
			return acquisitions[i].Date.Before(acquisitions[j].Date)
		}
		return acquisitions[i].ID < acquisitions[j].ID
	})

	securityID := models.SecurityID(account, symbol)
	unlock := s.lockSecurity(securityID)
	defer unlock()

	existing, err := s.lotStore.GetBySecurityID(securityID)
	if err != nil {
		return fmt.Errorf("loading existing lots: %w", err)
	}
	seenSource := make(map[string]bool, len(existing))
	for _, lot := range existing {
		if lot.SourceTransactionID != "" {
			seenSource[lot.SourceTransactionID] = true
		}
	}

	for _, tx := range acquisitions {
		if seenSource[tx.ID] {
			result.LotsSkipped++
			continue
		}
		if err := tx.Validate(); err != nil {
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
			continue
		}
		costBasis := math.Abs(tx.Amount)
		if costBasis == 0 {
			costBasis = tx.Quantity * tx.Price
		}
		lot, err := models.NewLot(account, symbol, tx.Quantity, tx.Date, costBasis, true)
		if err != nil {
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
			continue
		}
		lot.SourceTransactionID = tx.ID
		if err := s.lotStore.Save(lot); err != nil {
			return fmt.Errorf("saving lot for transaction %s: %w", tx.ID, err)
		}
		seenSource[tx.ID] = true
		result.LotsCreated++
	}

	return s.recordEarliestAcquisition(account, symbol, acquisitions[0].Date)
}

// recordEarliestAcquisition updates the cached acquisition date when it is
// missing or later than the supplied date.
func (s *reconcileServiceImpl) recordEarliestAcquisition(account, symbol string, date time.Time) error {
	meta, err := s.securityStore.Get(account, symbol)
	if err != nil {
		return fmt.Errorf("loading security metadata: %w", err)
	}
	if meta == nil {
		meta = &models.SecurityMetadata{Symbol: models.NormalizeSymbol(symbol), Account: account}
	}
	if !meta.AcquisitionDate.IsZero() && !date.Before(meta.AcquisitionDate) {
		return nil
	}
	meta.AcquisitionDate = date
	if err := s.securityStore.Save(meta); err != nil {
		return fmt.Errorf("saving security metadata: %w", err)
	}
	return nil
}

// runDispositionPass replays disposition transactions in date order across
// the whole account, allocating each against the symbol's open lots under
// the configured default method. Sales already charged in a previous run
// are skipped, mirroring the acquisition pass's source-transaction dedup.
func (s *reconcileServiceImpl) runDispositionPass(account string, txs []models.Transaction, result *ReconcileResult) {
	dispositions := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Category == models.CategoryDisposition {
			dispositions = append(dispositions, tx)
		}
	}
	sort.Slice(dispositions, func(i, j int) bool {
		if !dispositions[i].Date.Equal(dispositions[j].Date) {
			return dispositions[i].Date.Before(dispositions[j].Date)
		}
		return dispositions[i].ID < dispositions[j].ID
	})

	appliedBySecurity := make(map[string]map[string]bool)
	for _, tx := range dispositions {
		symbol := models.NormalizeSymbol(tx.Symbol)
		securityID := models.SecurityID(account, symbol)
		applied, ok := appliedBySecurity[securityID]
		if !ok {
			var err error
			if applied, err = s.appliedDispositions(securityID); err != nil {
				result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
				continue
			}
			appliedBySecurity[securityID] = applied
		}
		if applied[tx.ID] {
			result.SalesSkipped++
			continue
		}

		sale := models.SaleTerms{
			Quantity:            math.Abs(tx.Quantity),
			Date:                tx.Date,
			Price:               tx.Price,
			Amount:              math.Abs(tx.Amount),
			SourceTransactionID: tx.ID,
		}
		allocation, err := s.ApplySale(account, symbol, sale, s.defaultMethod, nil)
		if err != nil {
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
			continue
		}
		applied[tx.ID] = true
		result.SalesApplied++
		for _, warning := range allocation.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", symbol, warning))
		}
	}
}

// appliedDispositions collects the disposition transaction IDs already
// charged against a security's lots.
func (s *reconcileServiceImpl) appliedDispositions(securityID string) (map[string]bool, error) {
	lots, err := s.lotStore.GetBySecurityID(securityID)
	if err != nil {
		return nil, fmt.Errorf("loading lots for %s: %w", securityID, err)
	}
	applied := make(map[string]bool)
	for _, lot := range lots {
		for _, sale := range lot.SaleTransactions {
			if sale.SourceTransactionID != "" {
				applied[sale.SourceTransactionID] = true
			}
		}
	}
	return applied, nil
}

// CreateLotsFromSnapshot synthesizes lots for snapshot positions that have
// no transaction history. Re-uploading the same snapshot is a no-op: lots
// are deduped by acquisition date and cost basis.
func (s *reconcileServiceImpl) CreateLotsFromSnapshot(account string, positions []models.Position, snapshotDate time.Time) (*SnapshotResult, error) {
	if account == "" {
		return nil, &models.ValidationError{Field: "account", Reason: "missing account"}
	}
	result := &SnapshotResult{Errors: []SymbolError{}}

	for _, pos := range positions {
		symbol := models.NormalizeSymbol(pos.Symbol)
		if symbol == "" {
			continue
		}
		txs, err := s.transactionStore.GetBySymbol(account, symbol)
		if err != nil {
			return nil, fmt.Errorf("checking transaction history for %s: %w", symbol, err)
		}
		if len(txs) > 0 {
			// Transaction history wins; the reconciler owns this symbol.
			result.Skipped++
			continue
		}

		securityID := models.SecurityID(account, symbol)
		unlock := s.lockSecurity(securityID)
		existing, err := s.lotStore.GetBySecurityID(securityID)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("loading lots for %s: %w", securityID, err)
		}
		if hasSnapshotLot(existing, snapshotDate, pos.CostBasis) {
			result.Skipped++
			unlock()
			continue
		}

		lot, err := models.NewLot(account, symbol, pos.Quantity, snapshotDate, pos.CostBasis, false)
		if err != nil {
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
			unlock()
			continue
		}
		if err := s.lotStore.Save(lot); err != nil {
			unlock()
			return nil, fmt.Errorf("saving snapshot lot for %s: %w", securityID, err)
		}
		result.LotsCreated++
		unlock()

		if err := s.recordEarliestAcquisition(account, symbol, snapshotDate); err != nil {
			result.Errors = append(result.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
		}
		if pos.Description != "" {
			if meta, err := s.securityStore.Get(account, symbol); err == nil && meta != nil && meta.Description == "" {
				meta.Description = pos.Description
				if err := s.securityStore.Save(meta); err != nil {
					logger.L.Warn("Failed to save security description", "symbol", symbol, "error", err)
				}
			}
		}
	}

	s.invalidateAccountCache(account)
	return result, nil
}

func hasSnapshotLot(lots []*models.Lot, acquisitionDate time.Time, costBasis float64) bool {
	for _, lot := range lots {
		if lot.TransactionDerived {
			continue
		}
		if lot.AcquisitionDate.Equal(acquisitionDate) &&
			models.NearlyEqual(lot.CostBasis, costBasis, models.QuantityEpsilonCoarse) {
			return true
		}
	}
	return false
}

// ApplySale allocates a sale against a security's open lots and persists
// the affected lots atomically. Over-sell comes back in the result as a
// warning, not an error.
func (s *reconcileServiceImpl) ApplySale(account, symbol string, sale models.SaleTerms, method models.AccountingMethod, lotIDs []string) (*models.AllocationResult, error) {
	securityID := models.SecurityID(account, symbol)
	unlock := s.lockSecurity(securityID)
	defer unlock()

	open, err := s.lotStore.GetOpenBySecurityID(securityID)
	if err != nil {
		return nil, fmt.Errorf("loading open lots for %s: %w", securityID, err)
	}

	allocation := processors.AllocateSale(open, sale, method, lotIDs)
	if len(allocation.AffectedLots) > 0 {
		err = s.lotStore.WithSecurityTx(securityID, func(tx storage.LotTx) error {
			for _, affected := range allocation.AffectedLots {
				if err := tx.Save(affected.Lot); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("persisting sale against %s: %w", securityID, err)
		}
	}

	s.invalidateAccountCache(account)
	return allocation, nil
}

// ApplySplit rescales every lot of a security for a split or reverse split
// and records an account-level audit entry. Returns the number of lots
// adjusted.
func (s *reconcileServiceImpl) ApplySplit(account, symbol string, ratio float64, date time.Time, description string) (int, error) {
	securityID := models.SecurityID(account, symbol)
	unlock := s.lockSecurity(securityID)
	defer unlock()

	lots, err := s.lotStore.GetBySecurityID(securityID)
	if err != nil {
		return 0, fmt.Errorf("loading lots for %s: %w", securityID, err)
	}
	if len(lots) == 0 {
		return 0, fmt.Errorf("security %s: %w", securityID, ErrNoLotsForSecurity)
	}

	if err := processors.ApplySplitToLots(lots, ratio, date, description); err != nil {
		return 0, err
	}
	err = s.lotStore.WithSecurityTx(securityID, func(tx storage.LotTx) error {
		for _, lot := range lots {
			if err := tx.Save(lot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("persisting split for %s: %w", securityID, err)
	}

	if description == "" {
		description = processors.SplitDescription(ratio)
	}
	if err := s.saveAdjustment(account, symbol, models.SplitAdjustmentType(ratio), date, ratio, 0, description); err != nil {
		return 0, err
	}

	s.invalidateAccountCache(account)
	logger.L.Info("Applied split", "securityID", securityID, "ratio", ratio, "lots", len(lots))
	return len(lots), nil
}

// ApplyMerger re-keys a security's lots to the acquiring symbol at the
// given exchange ratio and migrates the security metadata with them.
func (s *reconcileServiceImpl) ApplyMerger(account, oldSymbol, newSymbol string, ratio float64, date time.Time, description string) (int, error) {
	oldSecurityID := models.SecurityID(account, oldSymbol)
	newSecurityID := models.SecurityID(account, newSymbol)
	if oldSecurityID == newSecurityID {
		return 0, &models.ValidationError{Field: "newSymbol", Reason: "merger target equals source symbol"}
	}

	// Lock ordering by securityID avoids deadlock with a concurrent
	// merger in the opposite direction.
	first, second := oldSecurityID, newSecurityID
	if second < first {
		first, second = second, first
	}
	unlockFirst := s.lockSecurity(first)
	defer unlockFirst()
	unlockSecond := s.lockSecurity(second)
	defer unlockSecond()

	lots, err := s.lotStore.GetBySecurityID(oldSecurityID)
	if err != nil {
		return 0, fmt.Errorf("loading lots for %s: %w", oldSecurityID, err)
	}
	if len(lots) == 0 {
		return 0, fmt.Errorf("security %s: %w", oldSecurityID, ErrNoLotsForSecurity)
	}

	if err := processors.ApplyMergerToLots(lots, newSymbol, ratio, date, description); err != nil {
		return 0, err
	}
	err = s.lotStore.WithSecurityTx(newSecurityID, func(tx storage.LotTx) error {
		for _, lot := range lots {
			if err := tx.Save(lot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("persisting merger %s -> %s: %w", oldSecurityID, newSecurityID, err)
	}

	if err := s.migrateSecurityMetadata(account, oldSymbol, newSymbol); err != nil {
		return 0, err
	}
	if description == "" {
		description = fmt.Sprintf("merger into %s at %g:1", models.NormalizeSymbol(newSymbol), ratio)
	}
	if err := s.saveAdjustment(account, oldSymbol, models.AdjustmentMerger, date, ratio, 0, description); err != nil {
		return 0, err
	}

	s.invalidateAccountCache(account)
	logger.L.Info("Applied merger", "from", oldSecurityID, "to", newSecurityID, "ratio", ratio, "lots", len(lots))
	return len(lots), nil
}

// RecordDividend writes an account-level dividend audit record. Dividends
// never touch lots; cost basis is unaffected.
func (s *reconcileServiceImpl) RecordDividend(account, symbol string, amount float64, date time.Time, description string) (*models.ManualAdjustment, error) {
	if amount <= 0 {
		return nil, &models.ValidationError{Field: "amount", Reason: "dividend amount must be positive"}
	}
	if models.NormalizeSymbol(symbol) == "" {
		return nil, &models.ValidationError{Field: "symbol", Reason: "missing symbol"}
	}
	adj := &models.ManualAdjustment{
		ID:             uuid.NewString(),
		Symbol:         models.NormalizeSymbol(symbol),
		Account:        account,
		Type:           models.AdjustmentDividend,
		Date:           date,
		DividendAmount: amount,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.adjustmentStore.Save(adj); err != nil {
		return nil, fmt.Errorf("recording dividend for %s/%s: %w", account, symbol, err)
	}
	return adj, nil
}

// ApplyTickerChange re-keys a security's lots and metadata to a renamed
// symbol without rescaling quantities.
func (s *reconcileServiceImpl) ApplyTickerChange(account, oldSymbol, newSymbol string) (int, error) {
	oldSecurityID := models.SecurityID(account, oldSymbol)
	newSecurityID := models.SecurityID(account, newSymbol)
	if oldSecurityID == newSecurityID {
		return 0, &models.ValidationError{Field: "newSymbol", Reason: "rename target equals source symbol"}
	}

	first, second := oldSecurityID, newSecurityID
	if second < first {
		first, second = second, first
	}
	unlockFirst := s.lockSecurity(first)
	defer unlockFirst()
	unlockSecond := s.lockSecurity(second)
	defer unlockSecond()

	lots, err := s.lotStore.GetBySecurityID(oldSecurityID)
	if err != nil {
		return 0, fmt.Errorf("loading lots for %s: %w", oldSecurityID, err)
	}
	if len(lots) == 0 {
		return 0, fmt.Errorf("security %s: %w", oldSecurityID, ErrNoLotsForSecurity)
	}

	normalized := models.NormalizeSymbol(newSymbol)
	description := fmt.Sprintf("ticker change %s -> %s", models.NormalizeSymbol(oldSymbol), normalized)
	now := time.Now().UTC()
	for _, lot := range lots {
		lot.Symbol = normalized
		lot.SecurityID = newSecurityID
		lot.Adjustments = append(lot.Adjustments, models.LotAdjustment{
			Type:        models.AdjustmentManual,
			Date:        now,
			Ratio:       1,
			Description: description,
		})
	}
	err = s.lotStore.WithSecurityTx(newSecurityID, func(tx storage.LotTx) error {
		for _, lot := range lots {
			if err := tx.Save(lot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("persisting ticker change %s -> %s: %w", oldSecurityID, newSecurityID, err)
	}

	if err := s.migrateSecurityMetadata(account, oldSymbol, newSymbol); err != nil {
		return 0, err
	}
	if err := s.saveAdjustment(account, oldSymbol, models.AdjustmentManual, now, 1, 0, description); err != nil {
		return 0, err
	}

	s.invalidateAccountCache(account)
	logger.L.Info("Applied ticker change", "from", oldSecurityID, "to", newSecurityID, "lots", len(lots))
	return len(lots), nil
}

// migrateSecurityMetadata copies the old symbol's metadata onto the new
// symbol, preserving an already-recorded acquisition date on the target.
func (s *reconcileServiceImpl) migrateSecurityMetadata(account, oldSymbol, newSymbol string) error {
	oldMeta, err := s.securityStore.Get(account, oldSymbol)
	if err != nil {
		return fmt.Errorf("loading metadata for %s/%s: %w", account, oldSymbol, err)
	}
	if oldMeta == nil {
		return nil
	}
	newMeta, err := s.securityStore.Get(account, newSymbol)
	if err != nil {
		return fmt.Errorf("loading metadata for %s/%s: %w", account, newSymbol, err)
	}
	if newMeta == nil {
		newMeta = &models.SecurityMetadata{Symbol: models.NormalizeSymbol(newSymbol), Account: account}
	}
	if newMeta.AcquisitionDate.IsZero() || (!oldMeta.AcquisitionDate.IsZero() && oldMeta.AcquisitionDate.Before(newMeta.AcquisitionDate)) {
		newMeta.AcquisitionDate = oldMeta.AcquisitionDate
	}
	if newMeta.Description == "" {
		newMeta.Description = oldMeta.Description
	}
	if err := s.securityStore.Save(newMeta); err != nil {
		return fmt.Errorf("saving metadata for %s/%s: %w", account, newSymbol, err)
	}
	if err := s.securityStore.Delete(account, oldSymbol); err != nil {
		return fmt.Errorf("deleting metadata for %s/%s: %w", account, oldSymbol, err)
	}
	return nil
}

func (s *reconcileServiceImpl) saveAdjustment(account, symbol string, adjType models.AdjustmentType, date time.Time, ratio, dividendAmount float64, description string) error {
	adj := &models.ManualAdjustment{
		ID:             uuid.NewString(),
		Symbol:         models.NormalizeSymbol(symbol),
		Account:        account,
		Type:           adjType,
		Date:           date,
		Ratio:          ratio,
		DividendAmount: dividendAmount,
		Description:    description,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.adjustmentStore.Save(adj); err != nil {
		return fmt.Errorf("recording adjustment for %s/%s: %w", account, symbol, err)
	}
	return nil
}

// DetectCorporateActions runs both detection heuristics over the account's
// transaction history. The report is cached until the next write.
func (s *reconcileServiceImpl) DetectCorporateActions(account string) (*CorporateActionReport, error) {
	cacheKey := fmt.Sprintf(ckCorporateActions, account)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for corporate actions", "account", account)
		return cached.(*CorporateActionReport), nil
	}

	txs, err := s.transactionStore.GetByAccount(account)
	if err != nil {
		return nil, fmt.Errorf("loading transactions for account %s: %w", account, err)
	}
	report := &CorporateActionReport{
		Actions:       processors.DetectCorporateActions(txs),
		TickerChanges: processors.DetectSymbolChange(txs),
	}
	s.reportCache.Set(cacheKey, report, cache.DefaultExpiration)
	return report, nil
}

// EnrichSnapshot annotates snapshot positions with lot-derived facts and
// flags quantity discrepancies between the snapshot and the open lots.
func (s *reconcileServiceImpl) EnrichSnapshot(account string, positions []models.Position) ([]models.EnrichedPosition, error) {
	cacheKey := fmt.Sprintf(ckEnrichedSnapshot, account, positionsHash(positions))
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for enriched snapshot", "account", account)
		return cached.([]models.EnrichedPosition), nil
	}

	enriched := make([]models.EnrichedPosition, 0, len(positions))
	for _, pos := range positions {
		symbol := models.NormalizeSymbol(pos.Symbol)
		if symbol == "" {
			continue
		}
		pos.Symbol = symbol
		entry := models.EnrichedPosition{Position: pos}

		lots, err := s.lotStore.GetBySecurityID(models.SecurityID(account, symbol))
		if err != nil {
			return nil, fmt.Errorf("loading lots for %s/%s: %w", account, symbol, err)
		}
		openQuantity := 0.0
		for _, lot := range lots {
			openQuantity += lot.RemainingQuantity
			if lot.TransactionDerived {
				entry.TransactionDerived = true
			}
		}
		entry.OpenLotQuantity = openQuantity

		meta, err := s.securityStore.Get(account, symbol)
		if err != nil {
			return nil, fmt.Errorf("loading metadata for %s/%s: %w", account, symbol, err)
		}
		if meta != nil {
			entry.EarliestAcquisitionDate = meta.AcquisitionDate
		}

		if len(lots) > 0 && !models.NearlyEqual(pos.Quantity, openQuantity, models.QuantityEpsilonFine) {
			entry.Discrepancy = fmt.Sprintf(
				"snapshot quantity %.4f does not match open lot quantity %.4f", pos.Quantity, openQuantity)
		}
		enriched = append(enriched, entry)
	}

	s.reportCache.Set(cacheKey, enriched, cache.DefaultExpiration)
	return enriched, nil
}

func positionsHash(positions []models.Position) string {
	h := sha256.New()
	for _, pos := range positions {
		fmt.Fprintf(h, "%s|%f|%f;", models.NormalizeSymbol(pos.Symbol), pos.Quantity, pos.CostBasis)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func (s *reconcileServiceImpl) GetLots(account string) ([]*models.Lot, error) {
	lots, err := s.lotStore.GetByAccount(account)
	if err != nil {
		return nil, fmt.Errorf("loading lots for account %s: %w", account, err)
	}
	if lots == nil {
		lots = []*models.Lot{}
	}
	return lots, nil
}

func (s *reconcileServiceImpl) GetAdjustments(account string) ([]*models.ManualAdjustment, error) {
	adjustments, err := s.adjustmentStore.GetByAccount(account)
	if err != nil {
		return nil, fmt.Errorf("loading adjustments for account %s: %w", account, err)
	}
	if adjustments == nil {
		adjustments = []*models.ManualAdjustment{}
	}
	return adjustments, nil
}

// PurgeAccount deletes everything recorded for an account: transactions,
// lots, metadata, and adjustment history.
func (s *reconcileServiceImpl) PurgeAccount(account string) error {
	if account == "" {
		return &models.ValidationError{Field: "account", Reason: "missing account"}
	}
	if err := s.transactionStore.DeleteByAccount(account); err != nil {
		return fmt.Errorf("purging transactions for %s: %w", account, err)
	}
	if err := s.lotStore.DeleteByAccount(account); err != nil {
		return fmt.Errorf("purging lots for %s: %w", account, err)
	}
	if err := s.securityStore.DeleteByAccount(account); err != nil {
		return fmt.Errorf("purging security metadata for %s: %w", account, err)
	}
	if err := s.adjustmentStore.DeleteByAccount(account); err != nil {
		return fmt.Errorf("purging adjustments for %s: %w", account, err)
	}
	s.invalidateAccountCache(account)
	logger.L.Info("Purged account", "account", account)
	return nil
}

// invalidateAccountCache drops every cached report for an account. The next
// read recomputes from the database.
func (s *reconcileServiceImpl) invalidateAccountCache(account string) {
	prefix := fmt.Sprintf("res_enriched_snapshot_%s_", account)
	for key := range s.reportCache.Items() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.reportCache.Delete(key)
		}
	}
	s.reportCache.Delete(fmt.Sprintf(ckCorporateActions, account))
}
