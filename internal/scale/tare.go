package scale

import (
	"errors"
	"fmt"
	"log/slog"

	"petshop-backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeResultSuppressed: dara okunan ağırlıktan büyük, sonuç sıfıra çekildi.
	// Çağırana hata olarak dönmez, Resolution.Suppressed ile bildirilir.
	ErrNegativeResultSuppressed = errors.New("dara okunan ağırlıktan büyük, faturalanacak ağırlık sıfırlandı")
	ErrInvalidReading           = errors.New("geçersiz terazi okuması")
)

type Resolution struct {
	Raw        decimal.Decimal `json:"raw_weight"`
	Tare       decimal.Decimal `json:"tare_weight"`
	Billable   decimal.Decimal `json:"billable_weight"`
	Suppressed bool            `json:"negative_suppressed"`
}

// ResolveBillableWeight: billable = max(0, raw - tare). Yan etkisi yoktur.
func ResolveBillableWeight(raw decimal.Decimal, p models.Product) (Resolution, error) {
	if raw.IsNegative() {
		return Resolution{}, fmt.Errorf("%w: %s kg", ErrInvalidReading, raw)
	}

	tare := decimal.Zero
	if p.TareWeight.Valid && p.TareWeight.Decimal.IsPositive() {
		tare = p.TareWeight.Decimal
	}

	billable := raw.Sub(tare)
	res := Resolution{Raw: raw, Tare: tare, Billable: billable}
	if billable.IsNegative() {
		res.Billable = decimal.Zero
		res.Suppressed = true
	}
	return res, nil
}

// Resolver: ResolveBillableWeight + bastırılan negatif sonuçların kaydı
type Resolver struct {
	Logger *slog.Logger
}

func (r Resolver) Resolve(raw decimal.Decimal, p models.Product) (Resolution, error) {
	res, err := ResolveBillableWeight(raw, p)
	if err != nil {
		return res, err
	}
	if res.Suppressed && r.Logger != nil {
		r.Logger.Warn(ErrNegativeResultSuppressed.Error(),
			slog.Uint64("product_id", uint64(p.ID)),
			slog.String("raw_weight", raw.String()),
			slog.String("tare_weight", res.Tare.String()),
		)
	}
	return res, nil
}
