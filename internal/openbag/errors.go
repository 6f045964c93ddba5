package openbag

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrBagNotFound            = errors.New("açık çuval bulunamadı")
	ErrNoOpenBag              = errors.New("bu ürün için açık çuval yok")
	ErrBranchNotFound         = errors.New("şube bulunamadı")
	ErrDuplicateOpenBag       = errors.New("bu ürün için şubede zaten açık bir çuval var")
	ErrNotWeighable           = errors.New("ürün tartılı satılmıyor")
	ErrInvalidWeight          = errors.New("çuval ağırlığı 0'dan büyük olmalı")
	ErrInvalidThreshold       = errors.New("düşük stok eşiği negatif olamaz")
	ErrInvalidQuantity        = errors.New("düşülecek miktar 0'dan büyük olmalı")
	ErrInsufficientRemaining  = errors.New("çuvalda yeterli ürün kalmadı")
	ErrBagClosed              = errors.New("çuval kapatılmış")
	ErrAlreadyClosed          = errors.New("çuval zaten kapatılmış")
	ErrConcurrentModification = errors.New("çuval başka bir işlem tarafından değiştirildi, tekrar deneyin")
)

// InsufficientRemainingError: istenen miktar kalanı aşıyor. Kalan hiçbir zaman negatife düşmez.
type InsufficientRemainingError struct {
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientRemainingError) Error() string {
	return fmt.Sprintf("%s: kalan %s kg, istenen %s kg", ErrInsufficientRemaining, e.Remaining, e.Requested)
}

func (e *InsufficientRemainingError) Is(target error) bool {
	return target == ErrInsufficientRemaining
}
