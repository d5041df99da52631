package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Bonus endpoints, called from inside the page so the session cookies apply.
const (
	BonusCountPath    = "/accounting/api/crm_roxy/getanybonuscount"
	BonusWageringPath = "/service/crm_proxy/crm_api/gamegate/anybonus/wagering"
)

const fetchScript = `async (path) => {
  try {
    const r = await fetch(path, {
      method: 'POST',
      headers: { 'Accept': 'application/json', 'Content-Type': 'application/json' },
      body: '{}',
    });
    const text = await r.text();
    let data = text;
    try { data = JSON.parse(text); } catch (e) {}
    return { status: r.status, statusText: r.statusText, ok: r.ok, data };
  } catch (e) {
    return { error: String(e && e.message || e) };
  }
}`

// APIResponse is one in-page fetch result.
type APIResponse struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	OK         bool   `json:"ok"`
	Data       any    `json:"data"`
	Error      string `json:"error,omitempty"`
}

// Bonus is a normalized bonus record.
type Bonus struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
	Wagering   float64 `json:"wagering"`
	ExpiryDate string  `json:"expiryDate,omitempty"`
}

// BonusReport is what Fetch found.
type BonusReport struct {
	Count    APIResponse
	Wagering *APIResponse
	Total    int
	Bonuses  []Bonus
}

// BonusesAPI reads the account's bonuses through the page.
type BonusesAPI struct {
	Surface
}

// NewBonusesAPI returns a bonuses client on s.
func NewBonusesAPI(s Surface) *BonusesAPI { return &BonusesAPI{Surface: s} }

func (b *BonusesAPI) post(ctx context.Context, path string) (APIResponse, error) {
	res, err := b.Page.Evaluate(ctx, fetchScript, path)
	if err != nil {
		return APIResponse{}, fmt.Errorf("failed to call %s: %w", path, err)
	}
	var resp APIResponse
	if err := remarshal(res, &resp); err != nil {
		return APIResponse{}, fmt.Errorf("unexpected response from %s: %w", path, err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("request to %s failed: %s", path, resp.Error)
	}
	b.Logger.Infof("%s: %d %s", path, resp.Status, resp.StatusText)
	return resp, nil
}

// Fetch reads the bonus count and, when there are bonuses, their wagering
// details. A count without details yields placeholder records.
func (b *BonusesAPI) Fetch(ctx context.Context) (BonusReport, error) {
	var report BonusReport

	count, err := b.post(ctx, BonusCountPath)
	if err != nil {
		return report, err
	}
	report.Count = count
	if !count.OK {
		return report, fmt.Errorf("bonus count returned %d %s", count.Status, count.StatusText)
	}
	if count.Data == nil {
		return report, errors.New("bonus count returned no data")
	}

	var payload struct {
		Response struct {
			Response struct {
				BonusCount int `json:"bonusCount"`
			} `json:"response"`
		} `json:"response"`
	}
	if err := remarshal(count.Data, &payload); err != nil {
		b.Logger.Warnf("unexpected bonus count payload: %v", err)
	}
	report.Total = payload.Response.Response.BonusCount
	b.Logger.Infof("account has %d bonuses", report.Total)
	if report.Total <= 0 {
		report.Bonuses = []Bonus{}
		return report, nil
	}

	wagering, err := b.post(ctx, BonusWageringPath)
	if err != nil {
		return report, err
	}
	report.Wagering = &wagering

	if wagering.OK {
		if m, ok := wagering.Data.(map[string]any); ok {
			if list, ok := m["response"].([]any); ok {
				report.Bonuses, err = NormalizeBonuses(list)
				if err != nil {
					return report, err
				}
			}
		}
	}
	if len(report.Bonuses) == 0 {
		report.Bonuses = placeholderBonuses(report.Total)
	}
	return report, nil
}

// NormalizeBonuses maps raw wagering records onto Bonus, accepting the
// alternative field names the API uses.
func NormalizeBonuses(raw []any) ([]Bonus, error) {
	out := make([]Bonus, 0, len(raw))
	var errs []error
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("bonus %d is %T, not an object", i, r))
			continue
		}
		b := Bonus{
			ID:         firstString(m, "id", "bonusId"),
			Type:       firstString(m, "type", "bonusType"),
			Currency:   firstString(m, "currency"),
			Status:     firstString(m, "status"),
			ExpiryDate: firstString(m, "expiryDate", "validUntil"),
		}
		if b.ID == "" {
			b.ID = fmt.Sprintf("bonus_%d", i+1)
		}
		if b.Type == "" {
			b.Type = "bonus"
		}
		if b.Currency == "" {
			b.Currency = "UAH"
		}
		if b.Status == "" {
			b.Status = "active"
		}

		var err error
		if b.Amount, err = firstNumber(m, "amount", "value"); err != nil {
			errs = append(errs, fmt.Errorf("bonus %d amount: %w", i, err))
		}
		if b.Wagering, err = firstNumber(m, "wagering", "wageringRequired"); err != nil {
			errs = append(errs, fmt.Errorf("bonus %d wagering: %w", i, err))
		}
		out = append(out, b)
	}
	return out, errors.Join(errs...)
}

func placeholderBonuses(n int) []Bonus {
	out := make([]Bonus, n)
	for i := range out {
		out[i] = Bonus{ID: fmt.Sprintf("bonus_%d", i+1), Type: "bonus", Currency: "UAH", Status: "active"}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) (float64, error) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
			continue
		case float64:
			if v != 0 {
				return v, nil
			}
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0, fmt.Errorf("%s is not a number: %q", k, v)
			}
			if f != 0 {
				return f, nil
			}
		default:
			return 0, fmt.Errorf("%s has type %T", k, v)
		}
	}
	return 0, nil
}

// ValidateBonuses checks each record has an identity and non-negative
// amounts.
func ValidateBonuses(bonuses []Bonus) error {
	var errs []error
	for i, b := range bonuses {
		if b.ID == "" && b.Type == "" {
			errs = append(errs, fmt.Errorf("bonus at index %d missing both id and type", i))
		}
		if b.Amount < 0 {
			errs = append(errs, fmt.Errorf("bonus at index %d has invalid amount: %v", i, b.Amount))
		}
		if b.Wagering < 0 {
			errs = append(errs, fmt.Errorf("bonus at index %d has invalid wagering: %v", i, b.Wagering))
		}
	}
	return errors.Join(errs...)
}
