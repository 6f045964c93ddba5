package stock

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const reportSheet = "Stok"

// LevelRow: rapor satırı, ürün bilgisiyle birleştirilmiş seviye
type LevelRow struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	StockCode string          `json:"stock_code"`
	Unit      string          `json:"unit"`
	OnHand    decimal.Decimal `json:"on_hand"`
}

func LevelReport(ctx context.Context, db *gorm.DB, branchID uint) ([]LevelRow, error) {
	var rows []LevelRow
	err := db.WithContext(ctx).
		Table("stock_levels AS l").
		Select("l.product_id, p.name, p.stock_code, p.unit, l.on_hand").
		Joins("JOIN products p ON p.id = l.product_id").
		Where("l.branch_id = ?", branchID).
		Order("p.name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("stok raporu okunamadı: %w", err)
	}
	return rows, nil
}

// WriteLevelsXLSX: tek sayfalık sayım listesi. Miktar sütunu sayı olarak yazılır.
func WriteLevelsXLSX(w io.Writer, rows []LevelRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("xlsx sayfası hazırlanamadı: %w", err)
	}

	header := []any{"ÜRÜN ID", "ÜRÜN ADI", "STOK KODU", "BİRİM", "ELDEKİ"}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		onHand, _ := r.OnHand.Float64()
		row := []any{r.ProductID, r.Name, r.StockCode, r.Unit, onHand}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx yazılamadı: %w", err)
	}
	return nil
}
