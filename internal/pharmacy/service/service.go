package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/logger"
	"github.com/medflow/pharmacy-service/pkg/tenant"
)

const dateLayout = "2006-01-02"

// Store is the data-access port of the stock ledger
type Store interface {
	repository.Queries
	WithTx(ctx context.Context, fn func(context.Context, repository.TxStore) error) error
}

// StockEvents receives stock movements after they commit
type StockEvents interface {
	StockPurchased(ctx context.Context, purchase *repository.Purchase, batch *repository.Batch, balanceAfter int)
	StockReturned(ctx context.Context, ret *repository.PurchaseReturn, allocations []repository.BatchAllocation, balanceAfter int)
}

// Config holds stock ledger settings
type Config struct {
	// DefaultExpiry is used when neither the purchase nor the medication carries an expiry
	DefaultExpiry time.Time
}

// StockService records purchases and purchase returns against the stock ledger
type StockService struct {
	store  Store
	events StockEvents
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
}

// NewStockService creates a new stock service. events may be nil.
func NewStockService(store Store, events StockEvents, cfg Config, log *logger.Logger) *StockService {
	if cfg.DefaultExpiry.IsZero() {
		cfg.DefaultExpiry = time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return &StockService{
		store:  store,
		events: events,
		cfg:    cfg,
		logger: log.WithComponent("stock_service"),
		now:    time.Now,
	}
}

// MedicationSummary is the medication projection returned with purchases and returns
type MedicationSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
}

// VendorSummary is the vendor projection
type VendorSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserSummary is the creator projection
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

func medicationSummary(m *repository.Medication) *MedicationSummary {
	return &MedicationSummary{ID: m.ID, Name: m.Name, StockQuantity: m.StockQuantity}
}

func vendorSummary(v *repository.Vendor) *VendorSummary {
	if v == nil {
		return nil
	}
	return &VendorSummary{ID: v.ID, Name: v.Name}
}

// checkScope rejects a scope that did not come from the access-control collaborator
func checkScope(scope tenant.Scope) error {
	if _, err := tenant.NewScope(scope.HospitalID, scope.UserID); err != nil {
		return errors.Forbidden("missing or invalid hospital scope")
	}
	return nil
}

func requireUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return errors.Validation(map[string]string{field: "must be a valid UUID"})
	}
	return nil
}

// lookupCreator resolves the creator projection. Callers unknown to the user
// directory are returned without one.
func lookupCreator(ctx context.Context, q repository.Queries, userID string) (*UserSummary, error) {
	user, err := q.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &UserSummary{ID: user.ID, FullName: user.FullName}, nil
}

// lookupVendor resolves an optional vendor projection
func lookupVendor(ctx context.Context, q repository.Queries, vendorID *string) (*repository.Vendor, error) {
	if vendorID == nil {
		return nil, nil
	}
	vendor, err := q.GetVendor(ctx, *vendorID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return vendor, nil
}

// today returns the current UTC calendar date
func (s *StockService) today() time.Time {
	n := s.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// parseDate parses an optional YYYY-MM-DD field
func parseDate(field string, value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *value)
	if err != nil {
		return nil, errors.Validation(map[string]string{field: "must be a date (YYYY-MM-DD)"})
	}
	return &t, nil
}

func (s *StockService) scopedLogger(scope tenant.Scope) *logger.Logger {
	return s.logger.WithHospitalID(scope.HospitalID).WithUserID(scope.UserID)
}

// logFailure logs rejections at Warn. Other failures are left to the transport boundary.
func (s *StockService) logFailure(err error, msg string, scope tenant.Scope) {
	if errors.Is(err, errors.ErrBusinessRule) || errors.Is(err, errors.ErrCrossTenant) {
		s.scopedLogger(scope).Warn().
			Err(err).
			Str("code", errors.CodeOf(err)).
			Msg(msg)
	}
}
