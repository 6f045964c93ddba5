package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Format: terazi fiyat listesi kayıt biçimi. Ayraç ve karakter seti cihaz modeline bağlıdır.
type Format struct {
	Kind            string // delimited | xlsx
	Delimiter       string
	Encoding        string // utf-8 | windows-1254 | iso-8859-9 | cp437
	LineEnding      string
	NameWidth       int
	PLUWidth        int // 0: sıfır doldurma yok
	PriceMinorUnits bool
	TareSupported   bool
	Header          bool
	FileName        string
	StrictNames     bool
}

func DefaultFormat() Format {
	return Format{
		Kind:            "delimited",
		Delimiter:       ";",
		Encoding:        "utf-8",
		LineEnding:      "\r\n",
		NameWidth:       28,
		PLUWidth:        5,
		PriceMinorUnits: true,
		TareSupported:   true,
		Header:          false,
		FileName:        "plu.txt",
		StrictNames:     false,
	}
}

func (f Format) Validate() error {
	switch f.Kind {
	case "delimited", "xlsx":
	default:
		return fmt.Errorf("format.kind geçersiz: %q", f.Kind)
	}
	switch f.Encoding {
	case "utf-8", "windows-1254", "iso-8859-9", "cp437":
	default:
		return fmt.Errorf("format.encoding desteklenmiyor: %q", f.Encoding)
	}
	if f.Kind == "delimited" && f.Delimiter == "" {
		return fmt.Errorf("format.delimiter boş olamaz")
	}
	if f.NameWidth <= 0 {
		return fmt.Errorf("format.name_width pozitif olmalı")
	}
	if f.PLUWidth < 0 || f.PLUWidth > 5 {
		return fmt.Errorf("format.plu_width 0-5 arasında olmalı")
	}
	if f.FileName == "" {
		return fmt.Errorf("format.file_name boş olamaz")
	}
	return nil
}

// Profile: SCALE_PROFILE_FILE içeriği. Verilmeyen alanlar varsayılanda kalır.
type Profile struct {
	Format struct {
		Kind            *string `yaml:"kind"`
		Delimiter       *string `yaml:"delimiter"`
		Encoding        *string `yaml:"encoding"`
		LineEnding      *string `yaml:"line_ending"`
		NameWidth       *int    `yaml:"name_width"`
		PLUWidth        *int    `yaml:"plu_width"`
		PriceMinorUnits *bool   `yaml:"price_minor_units"`
		TareSupported   *bool   `yaml:"tare_supported"`
		Header          *bool   `yaml:"header"`
		FileName        *string `yaml:"file_name"`
		StrictNames     *bool   `yaml:"strict_names"`
	} `yaml:"format"`
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("terazi profili okunamadı: %w", err)
	}
	return ParseProfile(data)
}

func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("terazi profili çözümlenemedi: %w", err)
	}
	return &p, nil
}

// Merge: profilde verilen alanlar varsayılanın önüne geçer
func (f *Format) Merge(p *Profile) {
	if p == nil {
		return
	}
	pf := p.Format
	if pf.Kind != nil {
		f.Kind = *pf.Kind
	}
	if pf.Delimiter != nil {
		f.Delimiter = *pf.Delimiter
	}
	if pf.Encoding != nil {
		f.Encoding = *pf.Encoding
	}
	if pf.LineEnding != nil {
		f.LineEnding = *pf.LineEnding
	}
	if pf.NameWidth != nil {
		f.NameWidth = *pf.NameWidth
	}
	if pf.PLUWidth != nil {
		f.PLUWidth = *pf.PLUWidth
	}
	if pf.PriceMinorUnits != nil {
		f.PriceMinorUnits = *pf.PriceMinorUnits
	}
	if pf.TareSupported != nil {
		f.TareSupported = *pf.TareSupported
	}
	if pf.Header != nil {
		f.Header = *pf.Header
	}
	if pf.FileName != nil {
		f.FileName = *pf.FileName
	}
	if pf.StrictNames != nil {
		f.StrictNames = *pf.StrictNames
	}
}
