package ecotrend

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FlatReading is one meter reading of one month, flattened out of the nested
// consumptions response for easy filtering and storage.
type FlatReading struct {
	EntityID    string  `json:"entityId"`
	SupportCode string  `json:"supportCode"`
	Type        string  `json:"type"`
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	// Heating readings carry a kWh equivalent next to the unit value.
	EnergyValue float64 `json:"energyValue,omitempty"`
	EnergyUnit  string  `json:"energyUnit,omitempty"`
	Estimated   bool    `json:"estimated"`
}

// FlatReadings is a filterable list of flattened readings.
type FlatReadings []FlatReading

// Flatten turns the nested monthly consumption periods into one reading per
// type and month. The support code becomes part of each entity ID so readings
// of different accounts never collide.
func (c *Consumptions) Flatten(supportCode string) FlatReadings {
	var out FlatReadings
	for _, period := range c.Consumptions {
		for _, r := range period.Readings {
			if r.Type == "" {
				continue
			}
			out = append(out, FlatReading{
				EntityID:    entityID(r.Type, period.Date, supportCode),
				SupportCode: supportCode,
				Type:        r.Type,
				Year:        period.Date.Year,
				Month:       period.Date.Month,
				Value:       float64(r.Value),
				Unit:        r.Unit,
				EnergyValue: float64(r.AdditionalValue),
				EnergyUnit:  r.AdditionalUnit,
				Estimated:   r.Estimated,
			})
		}
	}
	return out
}

func entityID(readingType string, date MonthYear, supportCode string) string {
	return strings.ToLower(fmt.Sprintf("%s_%d_%d_%s", readingType, date.Year, date.Month, supportCode))
}

// ByType returns the readings of the given type, e.g. "heating".
func (rs FlatReadings) ByType(t string) FlatReadings {
	return rs.filter(func(r FlatReading) bool { return strings.EqualFold(r.Type, t) })
}

// ByYear returns the readings of the given year.
func (rs FlatReadings) ByYear(year int) FlatReadings {
	return rs.filter(func(r FlatReading) bool { return r.Year == year })
}

// ByMonth returns the readings of the given month across all years.
func (rs FlatReadings) ByMonth(month int) FlatReadings {
	return rs.filter(func(r FlatReading) bool { return r.Month == month })
}

// ByYearMonth returns the readings of one calendar month.
func (rs FlatReadings) ByYearMonth(year, month int) FlatReadings {
	return rs.filter(func(r FlatReading) bool { return r.Year == year && r.Month == month })
}

// Current returns the most recently completed month relative to now, which is
// the newest month the API can have data for.
func (rs FlatReadings) Current(now time.Time) FlatReadings {
	// Not AddDate: subtracting a month from the 29th-31st normalizes into the
	// current month again (Mar 31 minus one month is "Feb 31", i.e. Mar 3).
	year, month := now.Year(), int(now.Month())-1
	if month == 0 {
		year, month = year-1, 12
	}
	return rs.ByYearMonth(year, month)
}

// ByEntityID returns the reading with the given entity ID.
func (rs FlatReadings) ByEntityID(id string) (FlatReading, bool) {
	for _, r := range rs {
		if r.EntityID == id {
			return r, true
		}
	}
	return FlatReading{}, false
}

// Types returns the distinct reading types in first-seen order.
func (rs FlatReadings) Types() []string {
	seen := make(map[string]struct{})
	var types []string
	for _, r := range rs {
		if _, ok := seen[r.Type]; ok {
			continue
		}
		seen[r.Type] = struct{}{}
		types = append(types, r.Type)
	}
	return types
}

func (rs FlatReadings) filter(keep func(FlatReading) bool) FlatReadings {
	var out FlatReadings
	for _, r := range rs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// LastValues is the most recent reading per type.
type LastValues struct {
	Date         MonthYear
	Values       map[string]float64
	EnergyValues map[string]float64
	Units        map[string]string
}

// LastValues returns the newest month's reading per type, or false when no
// data is available at all.
func (c *Consumptions) LastValues() (LastValues, bool) {
	period, ok := newestPeriod(c.Consumptions)
	if !ok {
		return LastValues{}, false
	}

	lv := LastValues{
		Date:         period.Date,
		Values:       make(map[string]float64),
		EnergyValues: make(map[string]float64),
		Units:        make(map[string]string),
	}
	for _, r := range period.Readings {
		if r.Type == "" {
			continue
		}
		lv.Values[r.Type] = float64(r.Value)
		lv.Units[r.Type] = r.Unit
		if r.AdditionalUnit != "" {
			lv.EnergyValues[r.Type] = float64(r.AdditionalValue)
		}
	}
	return lv, true
}

// LastCosts is the most recent cost per type.
type LastCosts struct {
	Date  MonthYear
	Costs map[string]float64
	Unit  string
}

// LastCosts returns the newest month's cost per type, or false when the
// account has no cost data booked.
func (c *Consumptions) LastCosts() (LastCosts, bool) {
	period, ok := newestPeriod(c.Costs)
	if !ok {
		return LastCosts{}, false
	}

	lc := LastCosts{
		Date:  period.Date,
		Costs: make(map[string]float64),
	}
	for _, cost := range period.CostsByEnergyType {
		if cost.Type == "" {
			continue
		}
		lc.Costs[cost.Type] = float64(cost.Value)
		if lc.Unit == "" {
			lc.Unit = cost.Unit
		}
	}
	return lc, true
}

// SumsByYear returns per type the summed reading values of each year.
func (c *Consumptions) SumsByYear() map[string]map[int]float64 {
	sums := make(map[string]map[int]float64)
	for _, period := range c.Consumptions {
		for _, r := range period.Readings {
			if r.Type == "" {
				continue
			}
			if sums[r.Type] == nil {
				sums[r.Type] = make(map[int]float64)
			}
			sums[r.Type][period.Date.Year] += float64(r.Value)
		}
	}
	return sums
}

// newestPeriod picks the latest month. The API serves periods newest first,
// but that order is not guaranteed.
func newestPeriod(periods []Period) (Period, bool) {
	if len(periods) == 0 {
		return Period{}, false
	}
	newest := periods[0]
	for _, p := range periods[1:] {
		if p.Date.Year > newest.Date.Year ||
			(p.Date.Year == newest.Date.Year && p.Date.Month > newest.Date.Month) {
			newest = p
		}
	}
	return newest, true
}

// CurrentReadings returns the readings of the most recently completed month
// of the given consumption unit.
func (c *Client) CurrentReadings(ctx context.Context, unitUUID string) (FlatReadings, error) {
	readings, err := c.Readings(ctx, unitUUID)
	if err != nil {
		return nil, err
	}
	return readings.Current(c.now()), nil
}
