package datasource

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"sleepoutside/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrMalformed is returned when a payload decodes to nothing usable.
var ErrMalformed = errors.New("malformed product payload")

// rawProduct accepts every field spelling seen upstream. Nothing outside
// this file reads it.
type rawProduct struct {
	ID                   string              `json:"Id"`
	IDLower              string              `json:"id"`
	Name                 string              `json:"Name"`
	NameLower            string              `json:"name"`
	NameWithoutBrand     string              `json:"NameWithoutBrand"`
	Brand                rawBrand            `json:"Brand"`
	Category             string              `json:"Category"`
	FinalPrice           decimal.NullDecimal `json:"FinalPrice"`
	Price                decimal.NullDecimal `json:"Price"`
	PriceLower           decimal.NullDecimal `json:"price"`
	ListPrice            decimal.NullDecimal `json:"ListPrice"`
	SuggestedRetailPrice decimal.NullDecimal `json:"SuggestedRetailPrice"`
	MSRP                 decimal.NullDecimal `json:"MSRP"`
	Image                string              `json:"Image"`
	Images               struct {
		PrimarySmall  string `json:"PrimarySmall"`
		PrimaryMedium string `json:"PrimaryMedium"`
		PrimaryLarge  string `json:"PrimaryLarge"`
	} `json:"Images"`
	Colors                []rawColor `json:"Colors"`
	DescriptionHtmlSimple string     `json:"DescriptionHtmlSimple"`
	Description           string     `json:"Description"`
}

// rawBrand is either {"Name": "..."} or a bare string.
type rawBrand struct{ Name string }

func (b *rawBrand) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &b.Name)
	}
	var obj struct {
		Name string `json:"Name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	b.Name = obj.Name
	return nil
}

// rawColor is either an object or a bare color name.
type rawColor struct {
	ColorCode         string `json:"ColorCode"`
	ColorName         string `json:"ColorName"`
	ColorChipImageSrc string `json:"ColorChipImageSrc"`
}

func (c *rawColor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.ColorName)
	}
	type plain rawColor
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = rawColor(p)
	return nil
}

// decodeList accepts a bare array, {"Result": [...]} or {"Result": {...}}.
// Records that cannot be normalized are dropped.
func decodeList(data []byte, category string) ([]domain.Product, error) {
	raws, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(raws))
	for _, r := range raws {
		if p, ok := normalize(r, category); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func decodeRaw(data []byte) ([]rawProduct, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrMalformed
	}
	switch data[0] {
	case '[':
		var list []rawProduct
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		return list, nil
	case '{':
		var env struct {
			Result json.RawMessage `json:"Result"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		if len(bytes.TrimSpace(env.Result)) == 0 || bytes.Equal(bytes.TrimSpace(env.Result), []byte("null")) {
			return nil, nil
		}
		return decodeRaw(env.Result)
	}
	return nil, ErrMalformed
}

// decodeOne is decodeList for single-product endpoints.
func decodeOne(data []byte, category string) (domain.Product, error) {
	list, err := decodeList(data, category)
	if err != nil {
		return domain.Product{}, err
	}
	if len(list) == 0 {
		return domain.Product{}, ErrMalformed
	}
	return list[0], nil
}

// normalize maps a raw record onto the canonical Product. A record without
// an id, a name or a price is rejected rather than half-filled.
func normalize(r rawProduct, category string) (domain.Product, bool) {
	id := strings.TrimSpace(firstNonEmpty(r.ID, r.IDLower))
	name := strings.TrimSpace(firstNonEmpty(r.Name, r.NameLower, r.NameWithoutBrand))
	price, ok := firstValid(r.FinalPrice, r.Price, r.PriceLower, r.ListPrice)
	if id == "" || name == "" || !ok || price.IsNegative() {
		return domain.Product{}, false
	}

	p := domain.Product{
		ID:               id,
		Name:             name,
		NameWithoutBrand: strings.TrimSpace(firstNonEmpty(r.NameWithoutBrand, name)),
		Brand:            strings.TrimSpace(r.Brand.Name),
		Category:         strings.TrimSpace(firstNonEmpty(r.Category, category)),
		FinalPrice:       price,
		Images: domain.Images{
			Small:  r.Images.PrimarySmall,
			Medium: r.Images.PrimaryMedium,
			Large:  r.Images.PrimaryLarge,
		},
		Image:       firstNonEmpty(r.Images.PrimaryLarge, r.Images.PrimaryMedium, r.Images.PrimarySmall, r.Image),
		Description: firstNonEmpty(r.DescriptionHtmlSimple, r.Description),
	}
	if s, ok := firstValid(r.SuggestedRetailPrice, r.MSRP, r.ListPrice); ok && !s.IsNegative() {
		p.SuggestedPrice = decimal.NewNullDecimal(s)
	}
	for _, c := range r.Colors {
		if c.ColorName == "" && c.ColorCode == "" {
			continue
		}
		p.Colors = append(p.Colors, domain.Color{Code: c.ColorCode, Name: c.ColorName, ChipImage: c.ColorChipImageSrc})
	}
	return p, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstValid(vals ...decimal.NullDecimal) (decimal.Decimal, bool) {
	for _, v := range vals {
		if v.Valid {
			return v.Decimal, true
		}
	}
	return decimal.Decimal{}, false
}
