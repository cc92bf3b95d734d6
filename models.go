package ecotrend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a decimal measurement value as served by the API.
//
// The API is inconsistent about number formatting: values arrive either as
// JSON numbers or as German-formatted strings such as "1.234,5". Value
// normalizes both to a float64 on unmarshalling.
type Value float64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := parseDecimal(s)
		if err != nil {
			return fmt.Errorf("invalid decimal value %q: %v", s, err)
		}
		*v = Value(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// parseDecimal parses a decimal string in either German ("1.234,5") or
// plain ("1234.5") notation.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

// MonthYear is a calendar month.
type MonthYear struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Account is the account information of the logged-in user.
type Account struct {
	FirstName                        string            `json:"firstName"`
	LastName                         string            `json:"lastName"`
	Email                            string            `json:"email"`
	KeycloakID                       string            `json:"keycloakId"`
	Country                          string            `json:"country"`
	Locale                           string            `json:"locale"`
	Enabled                          bool              `json:"enabled"`
	EmailConfirmed                   bool              `json:"emailConfirmed"`
	IsDemo                           bool              `json:"isDemo"`
	UserGroup                        string            `json:"userGroup"`
	ConsumptionUnitUUIDs             []string          `json:"consumptionUnitUuids"`
	ResidentTimeRangeUUIDs           []string          `json:"residentTimeRangeUuids"`
	ResidentAndConsumptionUUIDsMap   map[string]string `json:"residentAndConsumptionUuidsMap"`
	ActiveConsumptionUnit            string            `json:"activeConsumptionUnit"`
	SupportCode                      string            `json:"supportCode"`
	TOS                              string            `json:"tos"`
	TOSUpdated                       string            `json:"tosUpdated"`
	Privacy                          string            `json:"privacy"`
	MobileNumber                     string            `json:"mobileNumber"`
	UnconfirmedPhoneNumber           string            `json:"unconfirmedPhoneNumber"`
	NotificationMethod               string            `json:"notificationMethod"`
	NotificationMethodEmailConfirmed bool              `json:"notificationMethodEmailConfirmed"`
	Marketing                        bool              `json:"marketing"`
	Ads                              bool              `json:"ads"`
	BetaPhase                        string            `json:"betaPhase"`
	MobileLoginStatus                string            `json:"mobileLoginStatus"`
}

// AverageConsumption compares a reading against the building average.
type AverageConsumption struct {
	AverageConsumptionValue                 Value `json:"averageConsumptionValue"`
	AverageConsumptionPercentage            int   `json:"averageConsumptionPercentage"`
	ResidentConsumptionValue                Value `json:"residentConsumptionValue"`
	ResidentConsumptionPercentage           int   `json:"residentConsumptionPercentage"`
	AdditionalAverageConsumptionValue       Value `json:"additionalAverageConsumptionValue"`
	AdditionalAverageConsumptionPercentage  int   `json:"additionalAverageConsumptionPercentage"`
	AdditionalResidentConsumptionValue      Value `json:"additionalResidentConsumptionValue"`
	AdditionalResidentConsumptionPercentage int   `json:"additionalResidentConsumptionPercentage"`
}

// ComparedConsumption compares a reading against the same period last year.
type ComparedConsumption struct {
	LastYearValue      Value     `json:"lastYearValue"`
	Period             MonthYear `json:"period"`
	Smiley             string    `json:"smiley"`
	ComparedPercentage int       `json:"comparedPercentage"`
	ComparedValue      Value     `json:"comparedValue"`
}

// Reading is a single meter reading of a period.
type Reading struct {
	Type                string               `json:"type"`
	Value               Value                `json:"value"`
	Unit                string               `json:"unit"`
	AdditionalValue     Value                `json:"additionalValue"`
	AdditionalUnit      string               `json:"additionalUnit"`
	Estimated           bool                 `json:"estimated"`
	ComparedConsumption *ComparedConsumption `json:"comparedConsumption,omitempty"`
	ComparedCost        *ComparedConsumption `json:"comparedCost,omitempty"`
	AverageConsumption  *AverageConsumption  `json:"averageConsumption,omitempty"`
}

// CostByEnergyType is the cost of a period for one energy type.
type CostByEnergyType struct {
	Type         string               `json:"type"`
	Value        Value                `json:"value"`
	Unit         string               `json:"unit"`
	Estimated    bool                 `json:"estimated"`
	ComparedCost *ComparedConsumption `json:"comparedCost,omitempty"`
}

// Period holds the readings and costs of one calendar month.
type Period struct {
	Date              MonthYear          `json:"date"`
	DocumentNumber    *string            `json:"documentNumber"`
	Exception         json.RawMessage    `json:"exception,omitempty"`
	IsSCEedBasic      bool               `json:"isSCEedBasic"`
	Readings          []Reading          `json:"readings"`
	CostsByEnergyType []CostByEnergyType `json:"costsByEnergyType,omitempty"`
}

// TimeRange is a span of calendar months.
type TimeRange struct {
	Start MonthYear `json:"start"`
	End   MonthYear `json:"end"`
}

// BillingPeriod holds the readings of one billing period.
type BillingPeriod struct {
	TimeRange TimeRange       `json:"timeRange"`
	Readings  []Reading       `json:"readings"`
	Exception json.RawMessage `json:"exception,omitempty"`
}

// BillingPeriods pairs the current billing period with the previous one.
type BillingPeriods struct {
	Current  BillingPeriod `json:"currentBillingPeriod"`
	Previous BillingPeriod `json:"previousBillingPeriod"`
}

// Consumptions is the consumption data of one consumption unit.
type Consumptions struct {
	ConsumptionUnitID           string           `json:"consumptionUnitId"`
	Consumptions                []Period         `json:"consumptions"`
	Costs                       []Period         `json:"costs"`
	CO2Emissions                []Period         `json:"co2Emissions"`
	ConsumptionsBillingPeriods  BillingPeriods   `json:"consumptionsBillingPeriods"`
	CostsBillingPeriods         BillingPeriods   `json:"costsBillingPeriods"`
	CO2EmissionsBillingPeriods  []BillingPeriods `json:"co2EmissionsBillingPeriods"`
	IsSCEedBasicForCurrentMonth bool             `json:"isSCEedBasicForCurrentMonth"`
	NonEEDBasicStartDate        json.RawMessage  `json:"nonEEDBasicStartDate,omitempty"`
	Resident                    json.RawMessage  `json:"resident,omitempty"`
}

// ConsumptionUnitAddress is the postal address of a consumption unit.
type ConsumptionUnitAddress struct {
	Street                string `json:"street"`
	HouseNumber           string `json:"houseNumber"`
	PostalCode            string `json:"postalCode"`
	City                  string `json:"city"`
	Country               string `json:"country"`
	Floor                 string `json:"floor"`
	PropertyNumber        string `json:"propertyNumber"`
	ConsumptionUnitNumber string `json:"consumptionUnitNumber"`
	IDAtCustomerUser      string `json:"idAtCustomerUser"`
}

// BookedServices lists the extra services booked for a consumption unit.
type BookedServices struct {
	Cost bool `json:"cost"`
	CO2  bool `json:"co2"`
}

// ConsumptionUnit is a residence or building readings are recorded for.
type ConsumptionUnit struct {
	ID             string                 `json:"id"`
	Address        ConsumptionUnitAddress `json:"address"`
	Booked         BookedServices         `json:"booked"`
	PropertyNumber string                 `json:"propertyNumber"`
}

// ConsumptionUnitDetails is the response of the menu endpoint.
type ConsumptionUnitDetails struct {
	ConsumptionUnits []ConsumptionUnit `json:"consumptionUnits"`
	CoBranding       json.RawMessage   `json:"coBranding,omitempty"`
}
