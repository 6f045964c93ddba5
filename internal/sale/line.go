// Package sale tartılı satış satırını tamamlar: terazi okuması -> dara düşümü -> açık çuval düşümü.
package sale

import (
	"context"
	"errors"
	"log/slog"

	"petshop-backend/internal/catalog"
	"petshop-backend/internal/models"
	"petshop-backend/internal/openbag"
	"petshop-backend/internal/scale"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLine     = errors.New("raw_weight veya quantity alanlarından yalnızca biri gönderilmeli")
	ErrInvalidQuantity = errors.New("miktar negatif olamaz")
)

// Line: raw_weight terazi okumasıdır (dara düşülür), quantity ise önceden çözülmüş miktardır
type Line struct {
	BranchID      uint
	ProductID     uint
	RawWeight     *decimal.Decimal
	Quantity      *decimal.Decimal
	SaleReference string
	ActorID       uint
	ActorName     string
}

type Result struct {
	ProductID        uint                    `json:"product_id"`
	BagID            uint                    `json:"bag_id,omitempty"`
	RawWeight        *decimal.Decimal        `json:"raw_weight,omitempty"`
	Tare             decimal.Decimal         `json:"tare_weight"`
	Billable         decimal.Decimal         `json:"billable_weight"`
	Suppressed       bool                    `json:"negative_suppressed"`
	UnitPrice        decimal.Decimal         `json:"unit_price"`
	LineTotal        decimal.Decimal         `json:"line_total"`
	Remaining        decimal.NullDecimal     `json:"remaining_weight"`
	MovementID       uint                    `json:"stock_movement_id,omitempty"`
	LowStockSignal   *openbag.LowStockSignal `json:"low_stock_signal,omitempty"`
	DecrementSkipped bool                    `json:"decrement_skipped"`
}

type Service struct {
	products *catalog.Repository
	bags     *openbag.Ledger
	resolver scale.Resolver
	log      *slog.Logger
}

func NewService(products *catalog.Repository, bags *openbag.Ledger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "sale_line"))
	return &Service{
		products: products,
		bags:     bags,
		resolver: scale.Resolver{Logger: log},
		log:      log,
	}
}

// CompleteLine: faturalanacak miktarı çözer ve açık çuvaldan düşer.
// Yetersiz kalan durumunda InsufficientRemainingError döner; satışı engellemek veya
// yönetici onayı istemek çağıranın kararıdır.
func (s *Service) CompleteLine(ctx context.Context, l Line) (*Result, error) {
	if (l.RawWeight == nil) == (l.Quantity == nil) {
		return nil, ErrInvalidLine
	}

	product, err := s.products.Get(ctx, l.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsWeighable {
		return nil, openbag.ErrNotWeighable
	}

	res := &Result{
		ProductID: product.ID,
		RawWeight: l.RawWeight,
		UnitPrice: product.PricePerUnit,
	}
	if l.RawWeight != nil {
		r, err := s.resolver.Resolve(*l.RawWeight, *product)
		if err != nil {
			return nil, err
		}
		res.Tare = r.Tare
		res.Billable = r.Billable
		res.Suppressed = r.Suppressed
	} else {
		if l.Quantity.IsNegative() {
			return nil, ErrInvalidQuantity
		}
		res.Billable = *l.Quantity
	}
	res.LineTotal = res.Billable.Mul(product.PricePerUnit).Round(2)

	// sıfır miktarlı satır çuvala dokunmaz
	if res.Billable.IsZero() {
		res.DecrementSkipped = true
		if bag, err := s.bags.Current(ctx, l.BranchID, product.ID); err == nil {
			res.BagID = bag.ID
			res.Remaining = decimal.NewNullDecimal(bag.RemainingWeight)
		}
		return res, nil
	}

	bag, err := s.bags.Current(ctx, l.BranchID, product.ID)
	if err != nil {
		return nil, err
	}

	dec, err := s.bags.Decrement(ctx, bag.ID, openbag.DecrementInput{
		Quantity:      res.Billable,
		Type:          models.MovementLooseSale,
		SaleReference: l.SaleReference,
		Actor:         openbag.Actor{UserID: l.ActorID, Name: l.ActorName},
	})
	if err != nil {
		return nil, err
	}

	res.BagID = dec.Bag.ID
	res.Remaining = decimal.NewNullDecimal(dec.Bag.RemainingWeight)
	res.MovementID = dec.Movement.ID
	res.LowStockSignal = dec.Signal
	return res, nil
}
