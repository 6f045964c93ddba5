package scale

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	xlsxSheet       = "PLU"
)

// Payload: cihaza tek seferde teslim edilen dosya
type Payload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Render: kayıtları profildeki biçimde (ayraçlı metin veya xlsx) seri hale getirir
func (c Codec) Render(records []PluRecord) (Payload, error) {
	if c.Format.Kind == "xlsx" {
		return c.renderXLSX(records)
	}
	return c.renderDelimited(records)
}

func (c Codec) renderDelimited(records []PluRecord) (Payload, error) {
	var sb strings.Builder
	if c.Format.Header {
		sb.WriteString(strings.Join(c.Header(), c.Format.Delimiter))
		sb.WriteString(c.Format.LineEnding)
	}
	for _, r := range records {
		sb.WriteString(c.EncodeLine(r))
		sb.WriteString(c.Format.LineEnding)
	}

	data, err := encodeText(sb.String(), c.Format.Encoding)
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		Name:        c.Format.FileName,
		ContentType: "text/plain; charset=" + c.Format.Encoding,
		Data:        data,
	}, nil
}

func (c Codec) renderXLSX(records []PluRecord) (Payload, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return Payload{}, fmt.Errorf("xlsx sayfası hazırlanamadı: %w", err)
	}

	header := c.Header()
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &row); err != nil {
		return Payload{}, fmt.Errorf("xlsx başlığı yazılamadı: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return Payload{}, err
		}
		fields := c.Fields(r)
		vals := make([]interface{}, len(fields))
		for j, v := range fields {
			vals[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &vals); err != nil {
			return Payload{}, fmt.Errorf("xlsx satırı yazılamadı: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Payload{}, fmt.Errorf("xlsx oluşturulamadı: %w", err)
	}

	return Payload{
		Name:        c.Format.FileName,
		ContentType: xlsxContentType,
		Data:        buf.Bytes(),
	}, nil
}

// ReadXLSX: xlsx fiyat listesini satırlara açar (doğrulama ve testler)
func ReadXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetRows(xlsxSheet)
}

// encodeText: cihaz karakter setine çevirir, karşılığı olmayan karakterler '?' olur
func encodeText(s, enc string) ([]byte, error) {
	var cm *charmap.Charmap
	switch enc {
	case "", "utf-8":
		return []byte(s), nil
	case "windows-1254":
		cm = charmap.Windows1254
	case "iso-8859-9":
		cm = charmap.ISO8859_9
	case "cp437":
		cm = charmap.CodePage437
	default:
		return nil, fmt.Errorf("desteklenmeyen karakter seti: %q", enc)
	}

	s = strings.Map(func(r rune) rune {
		if _, ok := cm.EncodeRune(r); !ok {
			return '?'
		}
		return r
	}, s)
	out, err := cm.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("metin %s karakter setine çevrilemedi: %w", enc, err)
	}
	return []byte(out), nil
}

// decodeText: encodeText'in tersi
func decodeText(b []byte, enc string) (string, error) {
	var cm *charmap.Charmap
	switch enc {
	case "", "utf-8":
		return string(b), nil
	case "windows-1254":
		cm = charmap.Windows1254
	case "iso-8859-9":
		cm = charmap.ISO8859_9
	case "cp437":
		cm = charmap.CodePage437
	default:
		return "", fmt.Errorf("desteklenmeyen karakter seti: %q", enc)
	}
	return cm.NewDecoder().String(string(b))
}

// ParsePayload: ayraçlı fiyat listesini kayıtlara çözer (başlık satırı atlanır)
func (c Codec) ParsePayload(p Payload) ([]PluRecord, error) {
	text, err := decodeText(p.Data, c.Format.Encoding)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(text, c.Format.LineEnding)
	if c.Format.Header && len(lines) > 0 {
		lines = lines[1:]
	}

	out := make([]PluRecord, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		r, err := c.Decode(line)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
