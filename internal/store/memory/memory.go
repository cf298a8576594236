// Package memory implements the Repository on in-process maps. It backs the
// test suite and the dev mode of cmd/server. CreateSale stages every hard
// mutation on copies and swaps them in at the commit point, so a hard failure
// leaves no partial state, matching the transactional store.
package memory

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/damndalandan/hardware-store-pos-sub001/internal/domain"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/pricing"
	"github.com/damndalandan/hardware-store-pos-sub001/internal/store"
)

const DefaultLocation = "main"

type stockKey struct {
	location  string
	productID string
}

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	stock            map[stockKey]*domain.StockRecord
	movements        []domain.StockMovement
	salesByID        map[string]*domain.Sale
	salesByNumber    map[string]string
	salesByIdem      map[string]string
	accounts         map[string]*domain.CustomerAccount
	arLedger         map[string][]domain.ARTransaction
	shiftsByID       map[string]*domain.Shift
	activeShiftByCsh map[string]string
	customersByID    map[string]*domain.Customer
	customersByName  map[string]string
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		stock:            make(map[stockKey]*domain.StockRecord),
		salesByID:        make(map[string]*domain.Sale),
		salesByNumber:    make(map[string]string),
		salesByIdem:      make(map[string]string),
		accounts:         make(map[string]*domain.CustomerAccount),
		arLedger:         make(map[string][]domain.ARTransaction),
		shiftsByID:       make(map[string]*domain.Shift),
		activeShiftByCsh: make(map[string]string),
		customersByID:    make(map[string]*domain.Customer),
		customersByName:  make(map[string]string),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small hardware-store catalog,
// one AR customer account, and dev credentials.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seedProducts := []struct {
		id    string
		sku   string
		name  string
		cost  string
		price string
		stock int
	}{
		{"prod-hammer", "HW-HAMMER-01", "Claw Hammer 16oz", "62.50", "100.00", 5},
		{"prod-nails", "HW-NAILS-2IN", "Common Nails 2in (1kg)", "28.00", "50.00", 10},
		{"prod-plywood", "HW-PLY-18MM", "Marine Plywood 18mm", "240.00", "380.00", 25},
		{"prod-tape", "HW-TAPE-5M", "Tape Measure 5m", "55.00", "89.75", 40},
	}
	for _, p := range seedProducts {
		s.products[p.id] = domain.Product{
			ID:        p.id,
			SKU:       p.sku,
			Name:      p.name,
			UnitCost:  mustDec(p.cost),
			UnitPrice: mustDec(p.price),
			Active:    true,
		}
		s.stock[stockKey{DefaultLocation, p.id}] = &domain.StockRecord{
			ProductID:  p.id,
			Location:   DefaultLocation,
			CurrentQty: p.stock,
			UpdatedAt:  now,
		}
	}
	s.products["prod-retired"] = domain.Product{
		ID:        "prod-retired",
		SKU:       "HW-PAINT-OLD",
		Name:      "Discontinued Enamel Paint",
		UnitCost:  mustDec("90.00"),
		UnitPrice: mustDec("150.00"),
		Active:    false,
	}

	customerID := "cust-ar-1"
	s.customersByID[customerID] = &domain.Customer{
		ID:            customerID,
		Name:          "Juan Dela Cruz",
		Phone:         "0917-000-0001",
		LifetimeTotal: decimal.Zero,
		CreatedAt:     now,
	}
	s.customersByName[strings.ToLower("Juan Dela Cruz")] = customerID
	s.accounts["acct-1"] = &domain.CustomerAccount{
		ID:          "acct-1",
		CustomerID:  customerID,
		CreditLimit: mustDec("1000.00"),
		Balance:     mustDec("900.00"),
		UpdatedAt:   now,
	}

	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; dev
// defaults with a warning otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func normalizeLocation(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return DefaultLocation
	}
	return location
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || !product.UnitPrice.IsPositive() {
		return nil, store.ErrInvalidRequest
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, store.ErrDuplicate
		}
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetStockMap(_ context.Context, location string, productIDs []string) (map[string]int, error) {
	location = normalizeLocation(location)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		if rec, ok := s.stock[stockKey{location, id}]; ok {
			out[id] = rec.CurrentQty
		}
	}
	return out, nil
}

func (s *Store) ReserveStock(_ context.Context, productID string, qty int, location string) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	location = normalizeLocation(location)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.stock[stockKey{location, productID}]
	if !ok || rec.CurrentQty-rec.ReservedQty < qty {
		available := 0
		if ok {
			available = rec.CurrentQty - rec.ReservedQty
		}
		return &domain.InsufficientStockError{ProductID: productID, Available: available, Requested: qty}
	}
	rec.ReservedQty += qty
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReleaseStock(_ context.Context, productID string, qty int, location string) error {
	if qty < 1 {
		return store.ErrInvalidRequest
	}
	location = normalizeLocation(location)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.stock[stockKey{location, productID}]
	if !ok {
		return store.ErrNotFound
	}
	rec.ReservedQty -= qty
	if rec.ReservedQty < 0 {
		rec.ReservedQty = 0
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReceiveStock(_ context.Context, req domain.StockReceiveRequest, actor string) error {
	if req.ProductID == "" || req.Qty < 1 {
		return store.ErrInvalidRequest
	}
	location := normalizeLocation(req.Location)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[req.ProductID]; !ok {
		return store.ErrNotFound
	}

	key := stockKey{location, req.ProductID}
	rec, ok := s.stock[key]
	if !ok {
		rec = &domain.StockRecord{ProductID: req.ProductID, Location: location}
		s.stock[key] = rec
	}
	rec.CurrentQty += req.Qty
	rec.UpdatedAt = time.Now().UTC()

	s.movements = append(s.movements, domain.StockMovement{
		ID:        uuid.NewString(),
		ProductID: req.ProductID,
		Location:  location,
		Delta:     req.Qty,
		Kind:      domain.MovementKindPurchase,
		Reference: req.Reference,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) AdjustStock(_ context.Context, req domain.StockAdjustRequest, actor string) error {
	if req.ProductID == "" || req.Delta == 0 {
		return store.ErrInvalidRequest
	}
	location := normalizeLocation(req.Location)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := stockKey{location, req.ProductID}
	rec, ok := s.stock[key]
	if !ok {
		if req.Delta < 0 {
			return &domain.InsufficientStockError{ProductID: req.ProductID, Available: 0, Requested: -req.Delta}
		}
		rec = &domain.StockRecord{ProductID: req.ProductID, Location: location}
		s.stock[key] = rec
	}
	if rec.CurrentQty+req.Delta < 0 {
		return &domain.InsufficientStockError{ProductID: req.ProductID, Available: rec.CurrentQty, Requested: -req.Delta}
	}
	rec.CurrentQty += req.Delta
	rec.UpdatedAt = time.Now().UTC()

	s.movements = append(s.movements, domain.StockMovement{
		ID:        uuid.NewString(),
		ProductID: req.ProductID,
		Location:  location,
		Delta:     req.Delta,
		Kind:      domain.MovementKindAdjustment,
		Reference: req.Reason,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if productID == "" || s.movements[i].ProductID == productID {
			out = append(out, s.movements[i])
		}
	}
	return out, nil
}

// CreateSale validates every hard step against current state, then applies
// all mutations at once. Soft steps (shift totals, customer directory) run
// after the commit point and cannot fail the sale.
func (s *Store) CreateSale(_ context.Context, commit store.SaleCommit) (*domain.Sale, error) {
	sale := commit.Sale
	if len(sale.Lines) == 0 || len(sale.Splits) == 0 || sale.Number == "" {
		return nil, store.ErrInvalidRequest
	}
	location := normalizeLocation(commit.Location)
	sale.Location = location
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if existingID, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			existing := *s.salesByID[existingID]
			return &existing, nil
		}
	}

	// Hard step: product + stock validation, staged decrements.
	type staged struct {
		rec    *domain.StockRecord
		newQty int
	}
	stagedStock := make([]staged, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if !product.Active {
			return nil, store.ErrProductInactive
		}
		rec, ok := s.stock[stockKey{location, line.ProductID}]
		if !ok || rec.CurrentQty < line.Qty {
			available := 0
			if ok {
				available = rec.CurrentQty
			}
			return nil, &domain.InsufficientStockError{ProductID: line.ProductID, Available: available, Requested: line.Qty}
		}
		stagedStock = append(stagedStock, staged{rec: rec, newQty: rec.CurrentQty - line.Qty})
	}

	// Hard step: AR balance + limit check, staged.
	var arAccount *domain.CustomerAccount
	var arNewBalance decimal.Decimal
	if commit.ARAccountID != "" {
		account, ok := s.accounts[commit.ARAccountID]
		if !ok {
			return nil, store.ErrNotFound
		}
		arNewBalance = account.Balance.Add(commit.ARChargeTotal)
		if arNewBalance.GreaterThan(account.CreditLimit) {
			return nil, &domain.CreditLimitExceededError{
				AccountID: account.ID,
				Current:   account.Balance,
				Limit:     account.CreditLimit,
				Attempted: commit.ARChargeTotal,
			}
		}
		arAccount = account
	}

	// Commit point: everything below must succeed together.
	for i, line := range sale.Lines {
		stagedStock[i].rec.CurrentQty = stagedStock[i].newQty
		stagedStock[i].rec.UpdatedAt = now
		s.movements = append(s.movements, domain.StockMovement{
			ID:        uuid.NewString(),
			ProductID: line.ProductID,
			Location:  location,
			Delta:     -line.Qty,
			Kind:      domain.MovementKindSale,
			Reference: sale.Number,
			Actor:     commit.Actor,
			CreatedAt: now,
		})
	}

	if arAccount != nil {
		arAccount.Balance = arNewBalance
		arAccount.UpdatedAt = now
		s.arLedger[arAccount.ID] = append(s.arLedger[arAccount.ID], domain.ARTransaction{
			ID:           uuid.NewString(),
			AccountID:    arAccount.ID,
			Type:         domain.ARTypeCharge,
			Amount:       commit.ARChargeTotal,
			BalanceAfter: arNewBalance,
			Reference:    sale.Number,
			CreatedAt:    now,
		})
	}

	stored := sale
	s.salesByID[stored.ID] = &stored
	s.salesByNumber[stored.Number] = stored.ID
	if stored.IdempotencyKey != "" {
		s.salesByIdem[stored.IdempotencyKey] = stored.ID
	}

	// Soft step: shift aggregation. No active shift just skips the update.
	if shiftID, ok := s.activeShiftByCsh[sale.CashierID]; ok {
		shift := s.shiftsByID[shiftID]
		shift.TotalSales = shift.TotalSales.Add(sale.Total)
		shift.TransactionCount++
		for _, split := range sale.Splits {
			switch pricing.BucketFor(split.Instrument) {
			case pricing.BucketCash:
				shift.CashTotal = shift.CashTotal.Add(split.Amount)
			case pricing.BucketCard:
				shift.CardTotal = shift.CardTotal.Add(split.Amount)
			case pricing.BucketCheck:
				shift.CheckTotal = shift.CheckTotal.Add(split.Amount)
			case pricing.BucketAR:
				// AR tender is tracked in the subledger, not shift cash.
			default:
				shift.DigitalTotal = shift.DigitalTotal.Add(split.Amount)
			}
		}
		stored.ShiftID = shift.ID
	}

	// Soft step: customer directory.
	if name := strings.TrimSpace(commit.CustomerName); name != "" {
		customer := s.findOrCreateCustomerLocked(name, commit.CustomerPhone, commit.CustomerEmail)
		customer.LifetimeTotal = customer.LifetimeTotal.Add(sale.Total)
		last := now
		customer.LastPurchaseAt = &last
		stored.CustomerID = customer.ID
	}

	result := stored
	return &result, nil
}

func (s *Store) findOrCreateCustomerLocked(name string, phone string, email string) *domain.Customer {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := s.customersByName[key]; ok {
		return s.customersByID[id]
	}
	customer := &domain.Customer{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(name),
		Phone:         strings.TrimSpace(phone),
		Email:         strings.TrimSpace(email),
		LifetimeTotal: decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}
	s.customersByID[customer.ID] = customer
	s.customersByName[key] = customer.ID
	return customer
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *sale
	return &out, nil
}

func (s *Store) FindSaleByNumber(_ context.Context, number string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.salesByNumber[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *s.salesByID[id]
	return &out, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *s.salesByID[id]
	return &out, nil
}

// VoidSale is the terminal completed -> voided transition: stock for every
// line is restored with a return movement and an AR charge, if one backed the
// sale, is reversed with an adjustment entry.
func (s *Store) VoidSale(_ context.Context, id string, reason string, actor string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusVoided {
		return nil, store.ErrInvalidRequest
	}

	location := normalizeLocation(sale.Location)
	for _, line := range sale.Lines {
		key := stockKey{location, line.ProductID}
		rec, ok := s.stock[key]
		if !ok {
			rec = &domain.StockRecord{ProductID: line.ProductID, Location: location}
			s.stock[key] = rec
		}
		rec.CurrentQty += line.Qty
		rec.UpdatedAt = at
		s.movements = append(s.movements, domain.StockMovement{
			ID:        uuid.NewString(),
			ProductID: line.ProductID,
			Location:  location,
			Delta:     line.Qty,
			Kind:      domain.MovementKindReturn,
			Reference: sale.Number,
			Actor:     actor,
			CreatedAt: at,
		})
	}

	for _, split := range sale.Splits {
		if pricing.BucketFor(split.Instrument) != pricing.BucketAR {
			continue
		}
		for accountID, account := range s.accounts {
			if hasChargeFor(s.arLedger[accountID], sale.Number) {
				account.Balance = account.Balance.Sub(split.Amount)
				account.UpdatedAt = at
				s.arLedger[accountID] = append(s.arLedger[accountID], domain.ARTransaction{
					ID:           uuid.NewString(),
					AccountID:    accountID,
					Type:         domain.ARTypeAdjustment,
					Amount:       split.Amount.Neg(),
					BalanceAfter: account.Balance,
					Reference:    sale.Number + ":void",
					CreatedAt:    at,
				})
				break
			}
		}
	}

	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	voidedAt := at
	sale.VoidedAt = &voidedAt
	out := *sale
	return &out, nil
}

func hasChargeFor(entries []domain.ARTransaction, reference string) bool {
	for _, entry := range entries {
		if entry.Type == domain.ARTypeCharge && entry.Reference == reference {
			return true
		}
	}
	return false
}

func (s *Store) GetCustomerAccount(_ context.Context, accountID string) (*domain.CustomerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *account
	return &out, nil
}

func (s *Store) PostARPayment(_ context.Context, accountID string, amount decimal.Decimal, reference string) (*domain.ARTransaction, error) {
	if !amount.IsPositive() {
		return nil, store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	account.Balance = account.Balance.Sub(amount)
	account.UpdatedAt = time.Now().UTC()
	entry := domain.ARTransaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         domain.ARTypePayment,
		Amount:       amount.Neg(),
		BalanceAfter: account.Balance,
		Reference:    reference,
		CreatedAt:    time.Now().UTC(),
	}
	s.arLedger[accountID] = append(s.arLedger[accountID], entry)
	return &entry, nil
}

func (s *Store) PostARAdjustment(_ context.Context, accountID string, newBalance decimal.Decimal, reference string) (*domain.ARTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	delta := newBalance.Sub(account.Balance)
	account.Balance = newBalance
	account.UpdatedAt = time.Now().UTC()
	entry := domain.ARTransaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         domain.ARTypeAdjustment,
		Amount:       delta,
		BalanceAfter: newBalance,
		Reference:    reference,
		CreatedAt:    time.Now().UTC(),
	}
	s.arLedger[accountID] = append(s.arLedger[accountID], entry)
	return &entry, nil
}

func (s *Store) ListARTransactions(_ context.Context, accountID string, limit int) ([]domain.ARTransaction, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.arLedger[accountID]
	out := make([]domain.ARTransaction, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.CashierID == "" {
		return nil, store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.activeShiftByCsh[shift.CashierID]; open {
		return nil, store.ErrDuplicate
	}
	stored := shift
	stored.Status = domain.ShiftStatusOpen
	if stored.StartedAt.IsZero() {
		stored.StartedAt = time.Now().UTC()
	}
	s.shiftsByID[stored.ID] = &stored
	s.activeShiftByCsh[stored.CashierID] = stored.ID
	out := stored
	return &out, nil
}

func (s *Store) CloseActiveShift(_ context.Context, cashierID string, closingCash decimal.Decimal, at time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shiftID, ok := s.activeShiftByCsh[cashierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[shiftID]
	shift.Status = domain.ShiftStatusClosed
	shift.ClosingCash = closingCash
	ended := at
	shift.EndedAt = &ended
	delete(s.activeShiftByCsh, cashierID)
	out := *shift
	return &out, nil
}

func (s *Store) GetActiveShift(_ context.Context, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, ok := s.activeShiftByCsh[cashierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *s.shiftsByID[shiftID]
	return &out, nil
}

func (s *Store) FindOrCreateCustomer(_ context.Context, name string, phone string, email string) (*domain.Customer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer := s.findOrCreateCustomerLocked(name, phone, email)
	out := *customer
	return &out, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *customer
	return &out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
