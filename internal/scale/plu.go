// Package scale ürün kataloğu ile fiyat hesaplamalı terazi arasındaki köprü:
// PLU kodlama, fiyat listesi biçimi, taşıma katmanları ve aktarım.
package scale

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"petshop-backend/internal/config"
	"petshop-backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPLU   = errors.New("geçersiz PLU")
	ErrNameTooLong  = errors.New("ürün adı terazi alanına sığmıyor")
	ErrInvalidTare  = errors.New("geçersiz dara")
	ErrInvalidPrice = errors.New("geçersiz birim fiyat")
	ErrMalformed    = errors.New("bozuk PLU satırı")
)

// PluRecord: terazinin bir ürün için sakladığı alanlar
type PluRecord struct {
	PLU          int             `json:"plu"`
	Name         string          `json:"name"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	TareKg       decimal.Decimal `json:"tare_kg"`
}

var thousand = decimal.NewFromInt(1000)
var hundred = decimal.NewFromInt(100)

// Codec: PLU kaydı <-> cihaz satırı. Alan genişlikleri Format'tan gelir.
//
// Ad politikası: ad, NameWidth karaktere deterministik olarak kesilir ve bu bir hata değildir.
// Cihazın alanı sabit genişliktedir; iki ürünün kesilmiş adları çakışabilir, ayırt edici olan PLU'dur.
// StrictNames açıkken kesilmesi gereken ad ErrNameTooLong ile reddedilir.
type Codec struct {
	Format config.Format
}

func NewCodec(f config.Format) Codec {
	return Codec{Format: f}
}

func (c Codec) Encode(p models.Product) (PluRecord, error) {
	if p.ScalePLU == nil {
		return PluRecord{}, fmt.Errorf("%w: ürün %d için PLU tanımlı değil", ErrInvalidPLU, p.ID)
	}
	if !p.ValidPLU() {
		return PluRecord{}, fmt.Errorf("%w: %d (%d-%d aralığında olmalı)", ErrInvalidPLU, *p.ScalePLU, models.MinScalePLU, models.MaxScalePLU)
	}
	if p.PricePerUnit.IsNegative() {
		return PluRecord{}, fmt.Errorf("%w: %s", ErrInvalidPrice, p.PricePerUnit)
	}

	tare := decimal.Zero
	if p.TareWeight.Valid {
		if p.TareWeight.Decimal.IsNegative() {
			return PluRecord{}, fmt.Errorf("%w: %s kg", ErrInvalidTare, p.TareWeight.Decimal)
		}
		tare = p.TareWeight.Decimal.Round(3)
	}

	name, truncated := c.fitName(p.Name)
	if truncated && c.Format.StrictNames {
		return PluRecord{}, fmt.Errorf("%w: %q (en fazla %d karakter)", ErrNameTooLong, p.Name, c.Format.NameWidth)
	}

	return PluRecord{
		PLU:          *p.ScalePLU,
		Name:         name,
		PricePerUnit: p.PricePerUnit.Round(2),
		TareKg:       tare,
	}, nil
}

// fitName: ayraç ve satır sonlarını boşluğa çevirir, rune sınırında keser
func (c Codec) fitName(name string) (string, bool) {
	clean := strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == '\t' {
			return ' '
		}
		return r
	}, name)
	if c.Format.Delimiter != "" {
		clean = strings.ReplaceAll(clean, c.Format.Delimiter, " ")
	}
	clean = strings.TrimSpace(clean)

	if utf8.RuneCountInString(clean) <= c.Format.NameWidth {
		return clean, false
	}
	runes := []rune(clean)
	return strings.TrimRight(string(runes[:c.Format.NameWidth]), " "), true
}

// Fields: kaydın cihaz alanları (PLU, ad, fiyat, [dara])
func (c Codec) Fields(r PluRecord) []string {
	plu := strconv.Itoa(r.PLU)
	if c.Format.PLUWidth > 0 {
		plu = fmt.Sprintf("%0*d", c.Format.PLUWidth, r.PLU)
	}

	var price string
	if c.Format.PriceMinorUnits {
		price = r.PricePerUnit.Mul(hundred).Round(0).String()
	} else {
		price = r.PricePerUnit.StringFixed(2)
	}

	fields := []string{plu, r.Name, price}
	if c.Format.TareSupported {
		fields = append(fields, r.TareKg.Mul(thousand).Round(0).String()) // gram
	}
	return fields
}

func (c Codec) Header() []string {
	h := []string{"PLU", "NAME", "PRICE"}
	if c.Format.TareSupported {
		h = append(h, "TARE_G")
	}
	return h
}

func (c Codec) EncodeLine(r PluRecord) string {
	return strings.Join(c.Fields(r), c.Format.Delimiter)
}

// Decode: EncodeLine'ın tersi. Çalışma zamanında kullanılmaz, terazi bu köprü için salt yazılırdır.
func (c Codec) Decode(line string) (PluRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, c.Format.Delimiter)

	want := 3
	if c.Format.TareSupported {
		want = 4
	}
	if len(fields) != want {
		return PluRecord{}, fmt.Errorf("%w: %d alan bekleniyordu, %d geldi", ErrMalformed, want, len(fields))
	}

	plu, err := strconv.Atoi(fields[0])
	if err != nil || plu < models.MinScalePLU || plu > models.MaxScalePLU {
		return PluRecord{}, fmt.Errorf("%w: %q", ErrInvalidPLU, fields[0])
	}

	price, err := decimal.NewFromString(fields[2])
	if err != nil {
		return PluRecord{}, fmt.Errorf("%w: fiyat %q", ErrMalformed, fields[2])
	}
	if c.Format.PriceMinorUnits {
		price = price.Div(hundred)
	}

	tare := decimal.Zero
	if c.Format.TareSupported {
		grams, err := decimal.NewFromString(fields[3])
		if err != nil {
			return PluRecord{}, fmt.Errorf("%w: dara %q", ErrMalformed, fields[3])
		}
		tare = grams.Div(thousand)
	}

	return PluRecord{
		PLU:          plu,
		Name:         fields[1],
		PricePerUnit: price,
		TareKg:       tare,
	}, nil
}
